package webpic

// SPDX-License-Identifier: GPL-3.0-only

// Internal helpers exposed to the external test package.
var (
	NormalizeSourceURL = normalizeSourceURL
	DownloadTarget     = downloadTarget
)
