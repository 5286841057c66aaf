//go:build !(cgo && moqnative)

package main

import (
	"errors"

	"github.com/suhasHere/moqbridge/engine"
)

func nativeEngine() (engine.Engine, error) {
	return nil, errors.New("native engine not built in: rebuild with cgo and -tags moqnative")
}
