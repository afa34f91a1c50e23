// Command cuectl is the example collaborator client for a cue server: it
// runs the key provisioning handshake, posts cues, and listens for them,
// demonstrating the reconnect-with-backoff policy spec.md calls out as a
// client concern.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/faat/cue/internal/cue"
	"github.com/faat/cue/internal/cuectl"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "auth":
		err = runAuth(os.Args[2:])
	case "post":
		err = runPost(os.Args[2:])
	case "listen":
		err = runListen(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "cuectl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cuectl <auth|post|listen> [flags]")
}

type repeatedFlag []string

func (r *repeatedFlag) String() string { return fmt.Sprint([]string(*r)) }
func (r *repeatedFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func runAuth(args []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8000", "cue server base URL")
	name := fs.String("name", "", "name for the new key (required)")
	pattern := fs.String("pattern", "", "optional producer pattern restriction")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	var patPtr *string
	if *pattern != "" {
		patPtr = pattern
	}

	_, err := cuectl.Authenticate(*server, *name, patPtr, func(msg string) {
		fmt.Println(msg)
	})
	return err
}

func runPost(args []string) error {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	var names repeatedFlag
	fs.Var(&names, "name", "cue name to publish (repeatable)")
	body := fs.String("body", "", "raw body to attach to the cue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("at least one -name is required")
	}

	cfg, err := cuectl.LoadConfig()
	if err != nil {
		return err
	}
	return cuectl.New(cfg).Post(names, []byte(*body))
}

func runListen(args []string) error {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	var names repeatedFlag
	fs.Var(&names, "name", "cue name pattern to subscribe to (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("at least one -name is required")
	}

	cfg, err := cuectl.LoadConfig()
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	deliveries := make(chan *cue.Delivery, 16)
	client := cuectl.New(cfg)

	go func() {
		if err := client.Listen(names, deliveries, stop); err != nil {
			fmt.Fprintln(os.Stderr, "cuectl: listen:", err)
		}
		close(deliveries)
	}()

	for d := range deliveries {
		content := "<none>"
		if d.Content != nil {
			content = *d.Content
		}
		fmt.Printf("cue %s: names=%v content=%s\n", d.ID, d.Names, content)
	}
	return nil
}
