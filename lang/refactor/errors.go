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

package refactor

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput is returned when the source code is empty after trimming.
	ErrMissingInput = errors.New("source code is required")

	// ErrFormat marks a reply from which no code could be recovered. It is only
	// logged: the post processor substitutes the original source instead.
	ErrFormat = errors.New("model response was not in the expected format")
)

// UpstreamError reports a failed model call.
type UpstreamError struct {
	Provider string
	// Detail is the upstream message shown to the caller.
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("model request failed: %s", e.Detail)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Detail)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func newUpstreamError(provider string, err error) *UpstreamError {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return &UpstreamError{Provider: provider, Detail: detail, Err: err}
}
