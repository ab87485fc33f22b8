// Package jsonx is the single JSON codec used for on-disk block records and CLI output.
package jsonx

import (
	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

func Marshal(v interface{}) ([]byte, error) {
	return codec.Marshal(v)
}

func MarshalIndent(v interface{}) ([]byte, error) {
	return codec.MarshalIndent(v, "", "  ")
}

func Unmarshal(data []byte, v interface{}) error {
	return codec.Unmarshal(data, v)
}
