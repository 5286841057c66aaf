//go:build cgo && moqnative

package main

import (
	"github.com/suhasHere/moqbridge/engine"
	"github.com/suhasHere/moqbridge/engine/native"
)

func nativeEngine() (engine.Engine, error) {
	return native.New(), nil
}
