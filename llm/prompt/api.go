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

package prompt

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

type Prompt interface {
	String() string
}

type FilePrompt struct {
	Type PromptType         `json:"type" yaml:"type"`
	Path string             `json:"path" yaml:"path"`
	Data any                `json:"data" yaml:"data"`
	tpl  *template.Template `json:"-"`
	file []byte             `json:"-"`
}

type PromptType string

const (
	PromptTypePlainText  PromptType = "text"
	PromptTypeDummy      PromptType = "dummy"
	PromptTypeGoTemplate PromptType = "go-template"
)

func (p *FilePrompt) String() string {
	if p.tpl == nil {
		return string(p.file)
	}
	var buf = bytes.NewBuffer(nil)
	if err := p.tpl.Execute(buf, p.Data); err != nil {
		return string(p.file)
	}
	return buf.String()
}

// NewFilePrompt loads the prompt file. Templates are executed once here so
// that a bad template fails at load time instead of on first use.
func NewFilePrompt(c *FilePrompt) (Prompt, error) {
	switch c.Type {
	case PromptTypePlainText, "":
		bs, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, err
		}
		c.file = bs
		return c, nil
	case PromptTypeDummy:
		return TextPrompt(""), nil
	case PromptTypeGoTemplate:
		bs, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, err
		}
		tpl, err := template.New(c.Path).Parse(string(bs))
		if err != nil {
			return nil, err
		}
		var buf = bytes.NewBuffer(nil)
		if err := tpl.Execute(buf, c.Data); err != nil {
			return nil, err
		}
		c.file = bs
		c.tpl = tpl
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported prompt type %q", c.Type)
	}
}

type TextPrompt string

func (p TextPrompt) String() string {
	return string(p)
}

func NewTextPrompt(content string) Prompt {
	return TextPrompt(content)
}
