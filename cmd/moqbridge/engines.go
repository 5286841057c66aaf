package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/suhasHere/moqbridge/engine"
	"github.com/suhasHere/moqbridge/internal/guest"
)

// openEngine resolves --engine: "loopback", "native" or a path to a guest
// module. The returned func releases the engine after every client closed.
func openEngine(ctx context.Context, name string) (engine.Engine, func(), error) {
	switch name {
	case "", "loopback":
		eng, err := engine.NewWazeroEngine(ctx, guest.Loopback(), &engine.WazeroConfig{Name: "loopback"})
		if err != nil {
			return nil, nil, err
		}
		return eng, func() { _ = eng.Close(context.WithoutCancel(ctx)) }, nil
	case "native":
		eng, err := nativeEngine()
		if err != nil {
			return nil, nil, err
		}
		return eng, func() {}, nil
	}

	if !strings.HasSuffix(name, ".wasm") {
		return nil, nil, fmt.Errorf("unknown engine %q: want loopback, native or a .wasm file", name)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, nil, fmt.Errorf("read engine: %w", err)
	}
	eng, err := engine.NewWazeroEngine(ctx, data, &engine.WazeroConfig{
		Name: strings.TrimSuffix(filepath.Base(name), ".wasm"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", name, err)
	}
	return eng, func() { _ = eng.Close(context.WithoutCancel(ctx)) }, nil
}
