package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/decertify/decertify/pkg/client"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	token     string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "decert",
	Short: "decertify command-line interface",
	Long: `decert issues and verifies blockchain-anchored certificates
against a running decertify server.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.decertify")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.decertify/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "decertify server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "session token for authenticated commands")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(issuedCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{}
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return client.New(serverURL, opts...)
}

// ── login ────────────────────────────────────────────────────────────────────

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Authenticate and print a session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("DECERT_PASSWORD")
		if password == "" {
			return fmt.Errorf("set DECERT_PASSWORD in the environment")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		tok, err := newClient().Login(ctx, args[0], password)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		fmt.Fprintln(os.Stderr, "pass this via --token or save it as 'token' in ~/.decertify/config.yaml")
		return nil
	},
}

// ── issue ────────────────────────────────────────────────────────────────────

var (
	issueEmail   string
	issueDesc    string
	issueIssuer  string
	issueExpires string
)

var issueCmd = &cobra.Command{
	Use:   "issue <recipient-name> <title>",
	Short: "Issue a certificate anchored on the ledger",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := client.IssueRequest{
			RecipientName:  args[0],
			Title:          args[1],
			RecipientEmail: issueEmail,
			Description:    issueDesc,
			IssuerName:     issueIssuer,
		}
		if issueExpires != "" {
			exp, err := time.Parse("2006-01-02", issueExpires)
			if err != nil {
				return fmt.Errorf("parse --expires (want YYYY-MM-DD): %w", err)
			}
			req.ExpiryDate = &exp
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		cert, err := newClient().Issue(ctx, req)
		if err != nil {
			return err
		}

		fmt.Printf("issued %s\n", cert.ID)
		fmt.Printf("  fingerprint:    %s\n", cert.Fingerprint)
		fmt.Printf("  transaction id: %s\n", cert.TransactionID)
		if !cert.Anchored {
			fmt.Println("  WARNING: record is NOT anchored on the real ledger (stub fallback)")
		}
		return nil
	},
}

func init() {
	issueCmd.Flags().StringVar(&issueEmail, "email", "", "recipient email (required)")
	issueCmd.Flags().StringVar(&issueDesc, "description", "", "certificate description (required)")
	issueCmd.Flags().StringVar(&issueIssuer, "issuer", "", "issuer display name")
	issueCmd.Flags().StringVar(&issueExpires, "expires", "", "expiry date, YYYY-MM-DD")
	_ = issueCmd.MarkFlagRequired("email")
	_ = issueCmd.MarkFlagRequired("description")
}

// ── verify ───────────────────────────────────────────────────────────────────

var (
	verifyID          string
	verifyFingerprint string
	verifyRecipient   string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a certificate against the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		criteria := client.VerifyCriteria{
			CertificateID: verifyID,
			Fingerprint:   verifyFingerprint,
			RecipientName: verifyRecipient,
		}
		if criteria == (client.VerifyCriteria{}) {
			return fmt.Errorf("provide one of --id, --fingerprint, --recipient")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		verdict, err := newClient().Verify(ctx, criteria)
		if err != nil {
			if errors.Is(err, client.ErrNotFound) {
				fmt.Println("not found")
				os.Exit(1)
			}
			return err
		}

		out, _ := json.MarshalIndent(verdict, "", "  ")
		fmt.Println(string(out))
		if verdict.Status != "valid" {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyID, "id", "", "certificate record id")
	verifyCmd.Flags().StringVar(&verifyFingerprint, "fingerprint", "", "content fingerprint (0x…)")
	verifyCmd.Flags().StringVar(&verifyRecipient, "recipient", "", "recipient name substring (best-effort)")
}

// ── issued ───────────────────────────────────────────────────────────────────

var issuedCmd = &cobra.Command{
	Use:   "issued",
	Short: "List certificates issued by your account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		certs, err := newClient().ListIssued(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tRECIPIENT\tTITLE\tSTATUS\tANCHORED")
		for _, c := range certs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", c.ID, c.RecipientName, c.Title, c.Status, c.Anchored)
		}
		return w.Flush()
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the decert version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}
