package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/acbmarket/feedctl/internal/storage"
	"github.com/acbmarket/feedctl/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Step-up verification for protected actions",
}

type verifyView struct {
	Action    string       `json:"action" yaml:"action"`
	State     verify.State `json:"state" yaml:"state"`
	Remaining string       `json:"remaining,omitempty" yaml:"remaining,omitempty"`
}

// openGate opens the record store and builds the gate over it. The
// returned func closes the store.
func openGate(a *app) (*verify.Gate, func(), error) {
	store, err := storage.Open(a.cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	gate := verify.NewGate(verify.GateOptions{
		TTL:       a.cfg.Verify.TTL,
		Store:     store,
		Confirmer: a.client,
		Auth:      a.client,
		Logger:    a.logger,
	})
	return gate, func() {
		if err := store.Close(); err != nil {
			printWarning("closing storage: %v", err)
		}
	}, nil
}

func gateView(g *verify.Gate) verifyView {
	v := verifyView{Action: g.Action(), State: g.Status()}
	if r := g.Remaining(); r > 0 {
		v.Remaining = r.Round(time.Second).String()
	}
	return v
}

func printGate(w io.Writer, v verifyView) {
	switch v.State {
	case verify.Verified:
		fmt.Fprintf(w, "%s %s (%s left)\n", successColor.Sprint(v.State), v.Action, v.Remaining)
	case verify.Expired:
		fmt.Fprintf(w, "%s %s\n", warningColor.Sprint(v.State), v.Action)
	default:
		fmt.Fprintf(w, "%s %s\n", v.State, v.Action)
	}
}

var verifyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether protected actions are unlocked",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		gate, closeStore, err := openGate(a)
		if err != nil {
			return err
		}
		defer closeStore()

		v := gateView(gate)
		return writeOutput(cmd.OutOrStdout(), outputFormat, v, func(w io.Writer) { printGate(w, v) })
	},
}

var verifyConfirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Re-enter your password to unlock protected actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		fromStdin, _ := cmd.Flags().GetBool("password-stdin")

		a, err := newApp()
		if err != nil {
			return err
		}
		gate, closeStore, err := openGate(a)
		if err != nil {
			return err
		}
		defer closeStore()

		var secret string
		if fromStdin {
			secret, err = readSecretLine(cmd.InOrStdin())
		} else {
			secret, err = promptPassword()
		}
		if err != nil {
			return err
		}

		if err := gate.Confirm(cmd.Context(), secret); err != nil {
			return err
		}
		printSuccess("Verified for %s", gate.TTL())
		return nil
	},
}

var verifyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Exit non-zero unless protected actions are unlocked",
	Long: `Check the verification gate before running a protected action.
An expired verification is removed and reported as locked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		gate, closeStore, err := openGate(a)
		if err != nil {
			return err
		}
		defer closeStore()

		if !gate.CanProceed() {
			return fmt.Errorf("%s is locked; run 'feedctl verify confirm'", gate.Action())
		}
		v := gateView(gate)
		return writeOutput(cmd.OutOrStdout(), outputFormat, v, func(w io.Writer) { printGate(w, v) })
	},
}

var verifyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget any verification of this client",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		gate, closeStore, err := openGate(a)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := gate.Clear(); err != nil {
			return err
		}
		printSuccess("Verification cleared")
		return nil
	},
}

func init() {
	verifyConfirmCmd.Flags().Bool("password-stdin", false, "read the password from stdin")
	verifyCmd.AddCommand(verifyStatusCmd, verifyCheckCmd, verifyConfirmCmd, verifyClearCmd)
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal available for the password prompt (use --password-stdin)")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

func readSecretLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
