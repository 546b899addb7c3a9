/**
 * Copyright 2025 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"github.com/pkg/errors"
)

// WrapError annotates err with a formatted message and a stack trace.
// It returns nil if err is nil.
func WrapError(err error, msg string, args ...any) error {
	return errors.Wrapf(err, msg, args...)
}

// WithStack records a stack trace on err without changing its message.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// Cause returns the innermost error of a WrapError chain.
func Cause(err error) error {
	return errors.Cause(err)
}
