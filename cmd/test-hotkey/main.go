// Command test-hotkey is a manual test for the global hotkey listener.
// Run it, then press the hotkey to see events.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--mode hold|toggle] [--keys ctrl+shift+v]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/saycheese/internal/hotkey"
)

// printTarget prints what the engine would be asked to do.
type printTarget struct {
	enabled bool
}

func (p *printTarget) Enabled() bool { return p.enabled }

func (p *printTarget) SetEnabled(on bool) {
	p.enabled = on
	if on {
		fmt.Println(">>> ENABLE  (speech recognition on)")
	} else {
		fmt.Println("<<< DISABLE (speech recognition off)")
	}
}

func (p *printTarget) Resume() { fmt.Println(">>> RESUME  (listening)") }
func (p *printTarget) Pause()  { fmt.Println("<<< PAUSE   (not listening)") }

func main() {
	mode := flag.String("mode", "toggle", "hotkey mode: hold or toggle")
	combo := flag.String("keys", "ctrl+shift+v", "key combo joined with +")
	flag.Parse()

	keys := strings.Split(strings.ToLower(*combo), "+")
	fmt.Printf("Listening for %s in %q mode...\n", *combo, *mode)
	fmt.Println("Press Ctrl+C to exit.")

	listener := hotkey.NewListener(keys, *mode)

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	go func() {
		hotkey.Drive(listener.Events(), &printTarget{enabled: true})
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
