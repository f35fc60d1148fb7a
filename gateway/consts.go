package gateway

import (
	jsoniter "github.com/json-iterator/go"
)

// BufferSize sets a maximum buffer size for event channels.
const BufferSize = 2048

var json = jsoniter.ConfigCompatibleWithStandardLibrary
