package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tkoivu/threadline-backend/internal/app"
)

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(createSecretCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = app.DefaultConfigFile
		}
		if err := app.WriteDefaultConfigFile(path); err != nil {
			return err
		}
		fmt.Printf("Created %s\n", path)
		return nil
	},
}

var createSecretCmd = &cobra.Command{
	Use:   "create-secret",
	Short: "Generate a signing secret for user tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := make([]byte, 64)
		if _, err := rand.Read(raw); err != nil {
			return err
		}
		secret := base64.RawURLEncoding.EncodeToString(raw)
		fmt.Println("Copy the following line into your environment:")
		fmt.Printf("CHAINLIT_AUTH_SECRET=%s\n", secret)
		return nil
	},
}
