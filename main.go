// Package main runs the EMV bridge: it polls contactless cards through libnfc
// or PC/SC and exposes them to WebSocket clients, or exchanges APDUs from the
// command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dotside-studios/davi-emv-bridge/buildinfo"
	"github.com/dotside-studios/davi-emv-bridge/emv"
	"github.com/dotside-studios/davi-emv-bridge/nfc"
	"github.com/dotside-studios/davi-emv-bridge/server"
)

var (
	// CLI flags
	backendFlag    string
	devicePathFlag string
	portFlag       int
	noMDNSFlag     bool
	apiSecretFlag  string
	versionFlag    bool
)

// newManager is swapped in tests.
var newManager = nfc.NewManagerForBackend

func usage(fs *flag.FlagSet) func() {
	return func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: %s [flags] [command]\n\n", buildinfo.Name)
		fmt.Fprintf(out, "Commands:\n")
		fmt.Fprintf(out, "  serve                    run the WebSocket bridge (default)\n")
		fmt.Fprintf(out, "  list                     list reader devices\n")
		fmt.Fprintf(out, "  poll [-timeout d]        wait for a card and print its activation data\n")
		fmt.Fprintf(out, "  transceive [-timeout d] <hex>...\n")
		fmt.Fprintf(out, "                           wait for a card and send each APDU in order\n\n")
		fmt.Fprintf(out, "Flags:\n")
		fs.PrintDefaults()
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the selected command and returns the process exit code.
// Deferred cleanup runs before the process exits.
func run(args []string) int {
	fs := flag.NewFlagSet(buildinfo.Name, flag.ContinueOnError)
	fs.StringVar(&backendFlag, "backend", nfc.BackendLibnfc, "Reader backend: libnfc or pcsc")
	fs.StringVar(&devicePathFlag, "device", "", "Reader connection string or PC/SC reader name (optional)")
	fs.IntVar(&portFlag, "port", server.DefaultServerPort, "Port to listen on for WebSocket clients")
	fs.BoolVar(&noMDNSFlag, "no-mdns", false, "Do not advertise the bridge over mDNS")
	fs.StringVar(&apiSecretFlag, "api-secret", "", "API secret required from WebSocket clients (optional)")
	fs.BoolVar(&versionFlag, "version", false, "Print build information and exit")
	fs.Usage = usage(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if versionFlag {
		fmt.Println(buildinfo.BuildInfo())
		return 0
	}

	manager, err := newManager(backendFlag)
	if err != nil {
		log.Printf("Invalid backend: %v", err)
		return 2
	}
	if releaser, ok := manager.(interface{ Release() error }); ok {
		defer releaser.Release()
	}

	command := "serve"
	args = fs.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = runServe(manager)
	case "list":
		err = runList(manager)
	case "poll":
		err = runPoll(manager, args)
	case "transceive":
		err = runTransceive(manager, args)
	default:
		fs.Usage()
		return 2
	}

	if err != nil {
		log.Printf("%s: %v", command, err)
		return 1
	}
	return 0
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(manager nfc.Manager) error {
	if buildinfo.IsDev() {
		log.Printf("Running a development build")
	}

	reader, err := nfc.NewReader(manager, devicePathFlag)
	if err != nil {
		return err
	}
	defer reader.Finish()

	log.Printf("Reader availability (%s): %s", backendFlag, reader.Availability())

	srv := server.New(server.Config{
		Reader:      reader,
		Port:        portFlag,
		APISecret:   apiSecretFlag,
		Backend:     backendFlag,
		DisableMDNS: noMDNSFlag,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	ctx, stop := signalContext()
	defer stop()

	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received, stopping server...")
		srv.Stop()
		return nil
	case err := <-errCh:
		return err
	}
}

func runList(manager nfc.Manager) error {
	devices, err := manager.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}
	for _, device := range devices {
		fmt.Println(device)
	}
	return nil
}

// pollCard parses the -timeout flag of a subcommand and waits for a card.
func pollCard(ctx context.Context, reader *nfc.Reader, name string, args []string) (nfc.Tag, []string, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	timeout := fs.Duration("timeout", nfc.DefaultPollTimeout, "How long to wait for a card")
	fs.Parse(args)

	fmt.Fprintf(os.Stderr, "Waiting %v for a card...\n", *timeout)
	tag, err := reader.Poll(ctx, *timeout)
	if err != nil {
		return nil, nil, err
	}
	return tag, fs.Args(), nil
}

func runPoll(manager nfc.Manager, args []string) error {
	reader, err := nfc.NewReader(manager, devicePathFlag)
	if err != nil {
		return err
	}
	defer reader.Finish()

	ctx, stop := signalContext()
	defer stop()

	tag, _, err := pollCard(ctx, reader, "poll", args)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tag.Info())
}

func runTransceive(manager nfc.Manager, args []string) error {
	reader, err := nfc.NewReader(manager, devicePathFlag)
	if err != nil {
		return err
	}
	defer reader.Finish()

	ctx, stop := signalContext()
	defer stop()

	tag, commands, err := pollCard(ctx, reader, "transceive", args)
	if err != nil {
		return err
	}
	if len(commands) == 0 {
		return fmt.Errorf("no APDU given")
	}

	isoDep, ok := tag.(nfc.IsoDep)
	if !ok {
		return fmt.Errorf("card %s (%s) does not support ISO-DEP", tag.UID(), tag.Type())
	}
	provider := emv.NewProvider(isoDep)

	hist, err := provider.InitializationBytes()
	if err != nil {
		return fmt.Errorf("reading historical bytes: %w", err)
	}
	fmt.Printf("UID %s, historical bytes %s\n", tag.UID(), nfc.BytesToHex(hist))

	for _, hexCmd := range commands {
		cmd, _, err := nfc.CanonicalizeData(hexCmd)
		if err != nil {
			return fmt.Errorf("command %q: %w", hexCmd, err)
		}

		start := time.Now()
		resp, err := provider.Transceive(cmd)
		if err != nil {
			return fmt.Errorf("command %s: %w", nfc.BytesToHex(cmd), err)
		}

		fmt.Printf("> %s\n", nfc.BytesToHex(cmd))
		if apdu, err := nfc.ParseAPDUResponse(resp); err == nil {
			fmt.Printf("< %s SW=%04X (%v)\n", nfc.BytesToHex(apdu.Data), apdu.StatusWord(), time.Since(start).Round(time.Millisecond))
		} else {
			fmt.Printf("< %s (%v)\n", nfc.BytesToHex(resp), time.Since(start).Round(time.Millisecond))
		}
	}
	return nil
}
