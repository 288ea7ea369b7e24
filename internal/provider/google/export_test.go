// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package google

import (
	"google.golang.org/genai"

	"github.com/inkwell-dev/inkwell/internal/provider"
)

// ConvertMessages exposes convertMessages for white-box testing.
var ConvertMessages = func(msgs []provider.Message) ([]*genai.Content, error) {
	return convertMessages(msgs)
}

// BuildConfig exposes buildConfig for white-box testing.
var BuildConfig = func(req provider.ChatRequest) *genai.GenerateContentConfig {
	return buildConfig(req)
}
