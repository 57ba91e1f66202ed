// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/chime-foundation/chime/lib/secret"
	"github.com/chime-foundation/chime/lib/service"
	"github.com/chime-foundation/chime/messaging"
)

// runLogin authenticates against the homeserver and writes
// <state-dir>/session.json for the daemon to pick up. The password is
// prompted interactively unless -password-file points at a file.
func runLogin(args []string) error {
	flags := flag.NewFlagSet("chime login", flag.ExitOnError)
	homeserverURL := flags.String("homeserver", "http://localhost:6167", "Matrix homeserver URL")
	stateDir := flags.String("state-dir", "/var/lib/chime", "directory for the session file")
	passwordFile := flags.String("password-file", "", "path to a file containing the password (default: prompt)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: chime login <username> [flags]")
	}
	username := flags.Arg(0)

	password, err := readLoginPassword(*passwordFile)
	if err != nil {
		return err
	}
	defer password.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := messaging.NewClient(*homeserverURL)
	if err != nil {
		return fmt.Errorf("creating matrix client: %w", err)
	}
	session, err := client.Login(ctx, username, password, "chime")
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer session.Close()

	// Verify the token works before persisting it.
	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("session verification failed: %w", err)
	}

	data := service.SessionData{
		HomeserverURL: *homeserverURL,
		UserID:        whoami.UserID.String(),
		AccessToken:   session.AccessToken(),
	}
	if err := service.SaveSession(*stateDir, data); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Logged in as %s\n", whoami.UserID)
	fmt.Fprintf(os.Stderr, "Session saved to %s\n", *stateDir)
	return nil
}

// readLoginPassword reads the password from passwordFile, or prompts
// on the terminal with echo disabled when no file is given.
func readLoginPassword(passwordFile string) (*secret.Buffer, error) {
	if passwordFile != "" && passwordFile != "-" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", passwordFile, err)
		}
		// Strip trailing newlines, files often end with one.
		for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
			data = data[:len(data)-1]
		}
		if len(data) == 0 {
			secret.Zero(data)
			return nil, fmt.Errorf("file %s is empty", passwordFile)
		}
		buffer, err := secret.NewFromBytes(data)
		if err != nil {
			secret.Zero(data)
			return nil, err
		}
		return buffer, nil
	}

	stdinFD := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFD) {
		return nil, fmt.Errorf("no terminal for interactive password prompt (use -password-file)")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(stdinFD)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	buffer, err := secret.NewFromBytes(passwordBytes)
	if err != nil {
		secret.Zero(passwordBytes)
		return nil, err
	}
	return buffer, nil
}
