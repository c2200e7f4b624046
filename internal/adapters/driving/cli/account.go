package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/cloudpoll/internal/connectors/oauth"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage cloud storage accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <type>",
	Short: "Add an account",
	Long: `Add a Box, Dropbox or Google Drive account.

Types: box, dropbox, googledrive.

Pass an access token with --token, or a refresh token together with the
OAuth client credentials for box and googledrive. Without either, the
access token is read from the terminal without echo.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountAdd,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccountList,
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <account-id>",
	Short: "Remove an account and its position",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountRemove,
}

var accountResetCmd = &cobra.Command{
	Use:   "reset [account-id]",
	Short: "Reset positions so the next poll re-enumerates",
	Long: `Reset an account's position to the initial sentinel. The next poll
lists the whole account tree again. Use --all to reset every account.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAccountReset,
}

var accountTokenCmd = &cobra.Command{
	Use:   "token <account-id>",
	Short: "Replace an account's access token",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountToken,
}

var accountAuthorizeCmd = &cobra.Command{
	Use:   "authorize <account-id>",
	Short: "Obtain tokens through the provider's consent page",
	Long: `Run the OAuth authorization code flow for a box or googledrive account.
The account must already carry client_id and client_secret. A browser
opens on the consent page and the resulting access and refresh tokens
are stored on the account.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountAuthorize,
}

var (
	addName         string
	addToken        string
	addRefreshToken string
	addClientID     string
	addClientSecret string
	addPollFolder   string
	addExtra        []string
	resetAll        bool
	authorizePort   int
)

// passwordReader reads a secret. Replaced in tests.
var passwordReader = readPassword

// authorizer runs the interactive OAuth flow. Replaced in tests.
var authorizer = oauth.Authorize

func init() {
	accountAddCmd.Flags().StringVar(&addName, "name", "", "display name (defaults to the type)")
	accountAddCmd.Flags().StringVar(&addToken, "token", "", "access token")
	accountAddCmd.Flags().StringVar(&addRefreshToken, "refresh-token", "", "OAuth refresh token (box, googledrive)")
	accountAddCmd.Flags().StringVar(&addClientID, "client-id", "", "OAuth client ID")
	accountAddCmd.Flags().StringVar(&addClientSecret, "client-secret", "", "OAuth client secret")
	accountAddCmd.Flags().StringVar(&addPollFolder, "poll-folder", "", "Dropbox folder to poll (default: whole account)")
	accountAddCmd.Flags().StringArrayVar(&addExtra, "set", nil, "extra connector config as key=value (repeatable)")
	accountResetCmd.Flags().BoolVar(&resetAll, "all", false, "reset every account")
	accountAuthorizeCmd.Flags().IntVar(&authorizePort, "port", 0, "loopback callback port (default: any free port)")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountRemoveCmd)
	accountCmd.AddCommand(accountResetCmd)
	accountCmd.AddCommand(accountTokenCmd)
	accountCmd.AddCommand(accountAuthorizeCmd)
	rootCmd.AddCommand(accountCmd)
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	config := make(map[string]string)
	for _, kv := range addExtra {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("%w: --set expects key=value, got %q", domain.ErrInvalidInput, kv)
		}
		config[key] = value
	}
	setIfNotEmpty(config, domain.ConfigKeyToken, addToken)
	setIfNotEmpty(config, domain.ConfigKeyRefreshToken, addRefreshToken)
	setIfNotEmpty(config, domain.ConfigKeyClientID, addClientID)
	setIfNotEmpty(config, domain.ConfigKeyClientSecret, addClientSecret)
	setIfNotEmpty(config, domain.ConfigKeyPollFolder, addPollFolder)

	if config[domain.ConfigKeyToken] == "" && config[domain.ConfigKeyRefreshToken] == "" {
		cmd.Print("Access token: ")
		token := passwordReader()
		cmd.Println()
		setIfNotEmpty(config, domain.ConfigKeyToken, token)
	}

	account, err := s.Accounts.Add(commandContext(cmd), domain.AccountType(args[0]), addName, config)
	if err != nil {
		return fmt.Errorf("failed to add account: %w", err)
	}

	cmd.Printf("Account added: %s (%s, %s)\n", account.ID, account.Name, account.Type)
	cmd.Println("The first poll lists the whole account.")
	return nil
}

func runAccountList(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	accounts, err := s.Accounts.List(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		cmd.Println("No accounts configured. Add one with 'cloudpoll account add <type>'.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME\tPOSITION\tLAST POLL")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Type, a.Name, displayPosition(a.Position), formatTime(a.LastPoll))
	}
	return w.Flush()
}

func runAccountRemove(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if err := s.Accounts.Remove(commandContext(cmd), args[0]); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	cmd.Printf("Account removed: %s\n", args[0])
	return nil
}

func runAccountReset(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	switch {
	case resetAll && len(args) > 0:
		return fmt.Errorf("%w: pass an account id or --all, not both", domain.ErrInvalidInput)
	case resetAll:
		if err := s.Accounts.ResetAll(commandContext(cmd)); err != nil {
			return fmt.Errorf("failed to reset accounts: %w", err)
		}
		cmd.Println("All accounts reset.")
	case len(args) == 1:
		if err := s.Accounts.Reset(commandContext(cmd), args[0]); err != nil {
			return fmt.Errorf("failed to reset account: %w", err)
		}
		cmd.Printf("Account reset: %s\n", args[0])
	default:
		return fmt.Errorf("%w: pass an account id or --all", domain.ErrInvalidInput)
	}
	return nil
}

func runAccountToken(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	cmd.Print("New access token: ")
	token := passwordReader()
	cmd.Println()

	if err := s.Accounts.SetToken(commandContext(cmd), args[0], token); err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	cmd.Printf("Token updated for account %s\n", args[0])
	return nil
}

func runAccountAuthorize(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	account, err := s.Accounts.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	endpoint, scopes, ok := oauth.EndpointFor(account.Type)
	if !ok {
		return fmt.Errorf("%w: %s accounts use static tokens, see 'cloudpoll account token'",
			domain.ErrUnsupportedType, account.Type)
	}

	tok, err := authorizer(ctx, oauth.AuthorizeRequest{
		ClientID:     account.ConfigValue(domain.ConfigKeyClientID, ""),
		ClientSecret: account.ConfigValue(domain.ConfigKeyClientSecret, ""),
		Endpoint:     endpoint,
		Scopes:       scopes,
		Port:         authorizePort,
		Open: func(url string) error {
			cmd.Printf("Opening the consent page. If no browser appears, visit:\n%s\n", url)
			if err := oauth.OpenBrowser(url); err != nil {
				logger.Debug("open browser: %v", err)
			}
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	if err := s.Accounts.SetCredentials(ctx, account.ID, tok.AccessToken, tok.RefreshToken); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	cmd.Printf("Account authorized: %s\n", account.ID)
	return nil
}

func setIfNotEmpty(m map[string]string, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		m[key] = value
	}
}

func displayPosition(p string) string {
	if domain.IsSentinel(p) {
		return "(initial)"
	}
	const maxLen = 24
	if len(p) > maxLen {
		return p[:maxLen-3] + "..."
	}
	return p
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword() string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	return readLine(bufio.NewReader(os.Stdin))
}

// commandContext returns the command's context, or Background when unset.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
