// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.
package config

import (
	"encoding/json"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pingcap/errors"
)

// TomlDuration is a duration with a TOML and JSON representation in the
// format of time.ParseDuration, such as "100ms".
type TomlDuration time.Duration

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (d *TomlDuration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	*d = TomlDuration(v)
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface
func (d TomlDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the value as a time.Duration.
func (d TomlDuration) Duration() time.Duration {
	return time.Duration(d)
}

// ByteSize is a size in bytes. In TOML it is either an integer or a human
// readable string such as "64KiB".
type ByteSize uint64

// UnmarshalTOML implements the TOML unmarshaler interface
func (s *ByteSize) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case int64:
		if v < 0 {
			return errors.Errorf("invalid size %d", v)
		}
		*s = ByteSize(v)
		return nil
	case string:
		return s.UnmarshalText([]byte(v))
	default:
		return errors.Errorf("invalid size %v", data)
	}
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (s *ByteSize) UnmarshalText(text []byte) error {
	v, err := humanize.ParseBytes(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	*s = ByteSize(v)
	return nil
}

// MarshalJSON implements the json.Marshaler interface
func (s ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(s))
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (s *ByteSize) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*s = ByteSize(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.Trace(err)
	}
	return s.UnmarshalText([]byte(str))
}

func (s ByteSize) String() string {
	return humanize.IBytes(uint64(s))
}
