//go:build !linux

package main

import (
	"context"
	"log"
)

func watchButton(ctx context.Context, deviceName string, presses chan<- struct{}) {
	log.Printf("button: input devices are only supported on linux, ignoring %q", deviceName)
}
