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

package config

import (
	"context"

	"github.com/cloudwego/refactorbot/internal/utils"
	"github.com/cloudwego/refactorbot/llm/log"
)

// Watch reloads the file at path whenever it changes and passes each valid
// configuration to onReload. Invalid edits are logged and skipped. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	return utils.WatchFile(ctx, path, func() {
		cfg, err := Load(path)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			log.Warn("config reload of %s ignored: %v", path, err)
			return
		}
		log.Info("config reloaded from %s", path)
		onReload(cfg)
	})
}
