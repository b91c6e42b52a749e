package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AviroopPaul/atlas-ai/internal/config"
	"github.com/AviroopPaul/atlas-ai/internal/storage"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Create a user and print their API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		token, err := newToken()
		if err != nil {
			return err
		}

		user, err := store.CreateUser(args[0], token)
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		printSuccess("Created user %s (id %d)", user.Email, user.ID)
		fmt.Println(token)
		return nil
	},
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func init() {
	userCmd.AddCommand(userAddCmd)
}
