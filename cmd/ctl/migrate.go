package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kanbanhq/controlplane/pkg/security"
	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"
)

// migrate re-encrypts any workspace app-registration secret still stored
// in cleartext under an older schema version: a backup-then-bucket-walk
// pass over the bbolt file, applied to this domain's one at-rest secret.
var (
	migrateDataDir    string
	migrateDryRun     bool
	migrateBackupPath string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Re-encrypt any plaintext workspace app secrets left by an older schema version",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDataDir, "data-dir", "/data", "control plane data directory")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "show what would change without writing")
	migrateCmd.Flags().StringVar(&migrateBackupPath, "backup", "", "backup path (default: <data-dir>/controlplane.db.backup)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dbPath := filepath.Join(migrateDataDir, "controlplane.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database not found at %s", dbPath)
	}

	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Dry run: %v\n", migrateDryRun)

	if !migrateDryRun {
		backupFile := migrateBackupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		fmt.Printf("Creating backup: %s\n", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		fmt.Println("backup created successfully")
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sm, err := newSecretsManager()
	if err != nil {
		return err
	}

	return reencryptWorkspaceSecrets(db, sm, migrateDryRun)
}

func reencryptWorkspaceSecrets(db *bolt.DB, sm *security.SecretsManager, dryRun bool) error {
	type workspaceRow struct {
		ID                string  `json:"id"`
		Slug              string  `json:"slug"`
		AzureSecretCipher *string `json:"azure_secret_cipher,omitempty"`
	}

	var toMigrate []workspaceRow
	err := db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte("workspaces"))
		if bucket == nil {
			fmt.Println("no 'workspaces' bucket found - nothing to migrate")
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var row workspaceRow
			if err := json.Unmarshal(v, &row); err != nil {
				fmt.Printf("warning: skipping invalid JSON for key %s: %v\n", k, err)
				return nil
			}
			if row.AzureSecretCipher == nil {
				return nil
			}
			// A legacy plaintext secret never round-trips through
			// DecryptFromString; anything that already decodes cleanly is
			// assumed already migrated and left untouched.
			if _, err := sm.DecryptFromString(*row.AzureSecretCipher); err == nil {
				return nil
			}
			toMigrate = append(toMigrate, row)
			return nil
		})
	})
	if err != nil {
		return err
	}

	fmt.Printf("found %d workspace(s) with an unencrypted app secret\n", len(toMigrate))
	if len(toMigrate) == 0 {
		return nil
	}
	if dryRun {
		for _, row := range toMigrate {
			fmt.Printf("[dry run] would re-encrypt secret for workspace %s (%s)\n", row.Slug, row.ID)
		}
		return nil
	}

	return db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte("workspaces"))
		for _, row := range toMigrate {
			raw := bucket.Get([]byte(row.ID))
			if raw == nil {
				continue
			}
			var full map[string]json.RawMessage
			if err := json.Unmarshal(raw, &full); err != nil {
				return fmt.Errorf("decoding workspace %s: %w", row.ID, err)
			}
			encrypted, err := sm.EncryptToString(*row.AzureSecretCipher)
			if err != nil {
				return fmt.Errorf("encrypting secret for workspace %s: %w", row.ID, err)
			}
			encoded, err := json.Marshal(encrypted)
			if err != nil {
				return err
			}
			full["azure_secret_cipher"] = encoded
			updated, err := json.Marshal(full)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(row.ID), updated); err != nil {
				return err
			}
			fmt.Printf("re-encrypted secret for workspace %s (%s)\n", row.Slug, row.ID)
		}
		return nil
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
