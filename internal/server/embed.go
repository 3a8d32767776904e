package server

import (
	_ "embed"
)

// indexHTML は撮影画面のHTML
//
//go:embed web/index.html
var indexHTML []byte
