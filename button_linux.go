//go:build linux

package main

import (
	"context"
	"log"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

const BUTTON_DEBOUNCE_TIME = 200 * time.Millisecond

// watchButton reads key presses from the input device with the given name
// and hands each one to the loop. A full channel drops the press, the loop
// only cares that at least one happened.
func watchButton(ctx context.Context, deviceName string, presses chan<- struct{}) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		log.Printf("button: list devices: %v", err)
		return
	}
	var devPath string
	for _, p := range paths {
		if p.Name == deviceName {
			devPath = p.Path
			break
		}
	}
	if devPath == "" {
		log.Printf("button: no input device named %q", deviceName)
		return
	}

	dev, err := evdev.Open(devPath)
	if err != nil {
		log.Printf("button: open %s: %v", devPath, err)
		return
	}
	defer dev.Close()

	go func() {
		<-ctx.Done()
		dev.Close()
	}()
	log.Printf("button: using input device %s (%s)", devPath, deviceName)

	var lastPress time.Time
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("button: read error: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if ev.Type != evdev.EV_KEY || ev.Value != 1 {
			continue
		}
		now := time.Now()
		if now.Sub(lastPress) < BUTTON_DEBOUNCE_TIME {
			continue
		}
		lastPress = now
		select {
		case presses <- struct{}{}:
		default:
		}
	}
}
