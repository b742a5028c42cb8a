package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/archivebroni/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	insecure  bool
	outFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "archivectl",
	Short: "Catalog account CLI",
	Long: `archivectl manages your catalog account from the command line.

It signs you in, edits your profile and favorites, and exports or deletes
your data. The session is kept in ~/.archivectl/session.json.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(configDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("archivectl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		serverURL = viper.GetString("server_url")
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.archivectl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (development only)")
	rootCmd.PersistentFlags().StringVar(&outFormat, "format", "text", "Output format: text or json")
	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, profileCmd, favoritesCmd,
		passwordCmd, deleteCmd, exportCmd, publicCmd, versionCmd)
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".archivectl")
}

func sessionPath() string {
	if p := viper.GetString("session_file"); p != "" {
		return p
	}
	return filepath.Join(configDir(), "session.json")
}

// newClient builds a client carrying the saved session, if any.
func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithSessionFile(sessionPath())}
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	return client.New(serverURL, opts...)
}

func ctx() context.Context { return context.Background() }

// stdin is shared so piped answers to consecutive prompts are not lost.
var stdin = bufio.NewReader(os.Stdin)

// readSecret returns the flag value, the named env var, or a prompt answer.
func readSecret(flagVal, envKey, prompt string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := viper.GetString(envKey); v != "" {
		return v
	}
	fmt.Fprint(os.Stderr, prompt)
	line, _ := stdin.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printWarning(w string) {
	if w != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
}

func printProfile(p *client.Profile) error {
	if outFormat == "json" {
		return printJSON(p)
	}
	if p == nil {
		fmt.Println("(no profile)")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", p.ID)
	fmt.Fprintf(w, "Username:\t%s\n", p.Username)
	fmt.Fprintf(w, "Email:\t%s\n", p.Email)
	fmt.Fprintf(w, "Name:\t%s\n", p.FullName)
	fmt.Fprintf(w, "Bio:\t%s\n", p.Bio)
	fmt.Fprintf(w, "Website:\t%s\n", p.Website)
	fmt.Fprintf(w, "Location:\t%s\n", p.Location)
	fmt.Fprintf(w, "Avatar:\t%s\n", p.AvatarURL)
	fmt.Fprintf(w, "Favorites:\t%d\n", len(p.Favorites))
	fmt.Fprintf(w, "Public:\t%t\n", p.PrivacySettings.ProfilePublic)
	fmt.Fprintf(w, "Updated:\t%s\n", p.UpdatedAt.Format(time.RFC3339))
	return w.Flush()
}

// ── register ─────────────────────────────────────────────────────────────────

var (
	regEmail    string
	regUsername string
	regPassword string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		password := readSecret(regPassword, "password", "Password: ")
		reg, err := c.Register(ctx(), regEmail, password, regUsername)
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
		if outFormat == "json" {
			return printJSON(reg)
		}
		fmt.Printf("✓ Account created (id %s)\n", reg.IdentityID)
		if !reg.ProfileCreated {
			printWarning(reg.Warning)
			fmt.Println("Your profile will be created the next time you sign in.")
		}
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&regEmail, "email", "", "Email address")
	registerCmd.Flags().StringVar(&regUsername, "username", "", "Username")
	registerCmd.Flags().StringVar(&regPassword, "password", "", "Password (prompted when empty; or ARCHIVECTL_PASSWORD)")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("username")
}

// ── login / logout ───────────────────────────────────────────────────────────

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and save the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		password := readSecret(loginPassword, "password", "Password: ")
		sess, p, warning, err := c.Login(ctx(), loginEmail, password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		if err := client.SaveSession(sessionPath(), sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		printWarning(warning)
		if outFormat == "json" {
			return printJSON(p)
		}
		name := loginEmail
		if p != nil {
			name = p.Username
		}
		fmt.Printf("✓ Signed in as %s (session expires %s)\n", name, sess.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Email address")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (prompted when empty; or ARCHIVECTL_PASSWORD)")
	_ = loginCmd.MarkFlagRequired("email")
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if c.Token() != "" {
			if err := c.Logout(ctx()); err != nil {
				var apiErr *client.APIError
				if !errors.As(err, &apiErr) || apiErr.Kind != client.KindUnauthenticated {
					return fmt.Errorf("logout: %w", err)
				}
			}
		}
		if err := client.ClearSession(sessionPath()); err != nil {
			return err
		}
		fmt.Println("✓ Signed out")
		return nil
	},
}

// ── profile ──────────────────────────────────────────────────────────────────

var (
	updUsername string
	updFullName string
	updBio      string
	updWebsite  string
	updLocation string

	privPublic   bool
	privEmail    bool
	privMessages bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show your profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.Me(ctx())
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		return printProfile(p)
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Edit profile fields; only flags you pass are changed",
	RunE: func(cmd *cobra.Command, args []string) error {
		var upd client.ProfileUpdate
		set := func(name string, dst **string, val string) {
			if cmd.Flags().Changed(name) {
				v := val
				*dst = &v
			}
		}
		set("username", &upd.Username, updUsername)
		set("name", &upd.FullName, updFullName)
		set("bio", &upd.Bio, updBio)
		set("website", &upd.Website, updWebsite)
		set("location", &upd.Location, updLocation)

		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.UpdateProfile(ctx(), upd)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		return printProfile(p)
	},
}

var profilePrivacyCmd = &cobra.Command{
	Use:   "privacy",
	Short: "Set privacy settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.UpdatePrivacy(ctx(), client.PrivacySettings{
			ProfilePublic: privPublic,
			EmailPublic:   privEmail,
			AllowMessages: privMessages,
		})
		if err != nil {
			return fmt.Errorf("privacy: %w", err)
		}
		return printProfile(p)
	},
}

var profileAvatarCmd = &cobra.Command{
	Use:   "avatar <image-file>",
	Short: "Upload a new avatar image (max 5 MiB)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(args[0])))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.UploadAvatar(ctx(), filepath.Base(args[0]), contentType, f)
		if err != nil {
			return fmt.Errorf("avatar: %w", err)
		}
		fmt.Printf("✓ Avatar updated: %s\n", p.AvatarURL)
		return nil
	},
}

func init() {
	profileUpdateCmd.Flags().StringVar(&updUsername, "username", "", "Username")
	profileUpdateCmd.Flags().StringVar(&updFullName, "name", "", "Full name")
	profileUpdateCmd.Flags().StringVar(&updBio, "bio", "", "Bio (max 500 characters)")
	profileUpdateCmd.Flags().StringVar(&updWebsite, "website", "", "Website")
	profileUpdateCmd.Flags().StringVar(&updLocation, "location", "", "Location")

	profilePrivacyCmd.Flags().BoolVar(&privPublic, "public", true, "Profile visible to others")
	profilePrivacyCmd.Flags().BoolVar(&privEmail, "show-email", false, "Email visible on public profile")
	profilePrivacyCmd.Flags().BoolVar(&privMessages, "allow-messages", true, "Allow messages from other users")

	profileCmd.AddCommand(profileUpdateCmd, profilePrivacyCmd, profileAvatarCmd)
}

// ── favorites ────────────────────────────────────────────────────────────────

var (
	favTitle string
	favURL   string
)

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "List your favorites",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.Me(ctx())
		if err != nil {
			return fmt.Errorf("favorites: %w", err)
		}
		if outFormat == "json" {
			return printJSON(p.Favorites)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tID\tTITLE\tADDED")
		for _, f := range p.Favorites {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Type, f.ID, f.Title, f.AddedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <type> <id>",
	Short: "Save an item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.AddFavorite(ctx(), client.Favorite{Type: args[0], ID: args[1], Title: favTitle, URL: favURL})
		if err != nil {
			return fmt.Errorf("add favorite: %w", err)
		}
		if res.Changed {
			fmt.Printf("✓ Saved %s/%s (%d favorites)\n", args[0], args[1], len(res.Favorites))
		} else {
			fmt.Printf("%s/%s is already saved\n", args[0], args[1])
		}
		return nil
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <type> <id>",
	Short: "Remove a saved item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.RemoveFavorite(ctx(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("remove favorite: %w", err)
		}
		if res.Changed {
			fmt.Printf("✓ Removed %s/%s\n", args[0], args[1])
		} else {
			fmt.Printf("%s/%s was not saved\n", args[0], args[1])
		}
		return nil
	},
}

func init() {
	favoritesAddCmd.Flags().StringVar(&favTitle, "title", "", "Item title")
	favoritesAddCmd.Flags().StringVar(&favURL, "url", "", "Item URL")
	favoritesCmd.AddCommand(favoritesAddCmd, favoritesRemoveCmd)
}

// ── password / delete / export ───────────────────────────────────────────────

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change your password",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		current := readSecret("", "current_password", "Current password: ")
		next := readSecret("", "new_password", "New password: ")
		confirm := readSecret("", "new_password", "Confirm new password: ")
		if err := c.ChangePassword(ctx(), current, next, confirm); err != nil {
			return fmt.Errorf("change password: %w", err)
		}
		fmt.Println("✓ Password changed")
		return nil
	},
}

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete-account",
	Short: "Permanently delete your profile and account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !deleteForce {
			fmt.Print("This deletes your profile, favorites and login. It cannot be undone. Continue? [y/N]: ")
			answer, _ := stdin.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				fmt.Println("Aborted.")
				return nil
			}
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.DeleteAccount(ctx())
		if err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		_ = client.ClearSession(sessionPath())
		printWarning(res.Warning)
		fmt.Println("✓ Account deleted")
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download your personal data as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		data, err := c.Export(ctx())
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		var w io.Writer = os.Stdout
		if exportOut != "" {
			f, err := os.OpenFile(exportOut, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if exportOut != "" {
			fmt.Printf("✓ Data written to %s\n", exportOut)
		}
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "Skip confirmation prompt")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Write to file instead of stdout")
}

// ── public / version ─────────────────────────────────────────────────────────

var publicCmd = &cobra.Command{
	Use:   "public <username>",
	Short: "Show another user's public profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.PublicProfile(ctx(), args[0])
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.Kind == client.KindProfileNotFound {
				return fmt.Errorf("no public profile for %q", args[0])
			}
			return err
		}
		if outFormat == "json" {
			return printJSON(p)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Username:\t%s\n", p.Username)
		fmt.Fprintf(w, "Name:\t%s\n", p.FullName)
		fmt.Fprintf(w, "Bio:\t%s\n", p.Bio)
		fmt.Fprintf(w, "Website:\t%s\n", p.Website)
		if p.Email != "" {
			fmt.Fprintf(w, "Email:\t%s\n", p.Email)
		}
		fmt.Fprintf(w, "Member since:\t%s\n", p.MemberSince.Format("2006-01-02"))
		return w.Flush()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("archivectl " + version)
	},
}
