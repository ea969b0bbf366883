package commands

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

const (
	configDirName  = ".oic"
	configFileName = "config.yml"
	envProfileName = "env"
)

// Config represents the CLI configuration file.
type Config struct {
	CurrentProfile string              `mapstructure:"current_profile" yaml:"current_profile,omitempty"`
	Profiles       map[string]*Profile `mapstructure:"profiles"        yaml:"profiles,omitempty"`
}

// Profile holds the connection settings of one OIC instance.
type Profile struct {
	BaseURL        string `mapstructure:"base_url"        yaml:"base_url"`
	IdentityDomain string `mapstructure:"identity_domain" yaml:"identity_domain"`
	TokenURL       string `mapstructure:"token_url"       yaml:"token_url,omitempty"`
	ClientID       string `mapstructure:"client_id"       yaml:"client_id,omitempty"`
	ClientSecret   string `mapstructure:"client_secret"   yaml:"client_secret,omitempty"`
	Scope          string `mapstructure:"scope"           yaml:"scope,omitempty"`
	// AccessToken is a static token, never refreshed.
	AccessToken string `mapstructure:"access_token" yaml:"access_token,omitempty"`

	Timeout      string `mapstructure:"timeout"       yaml:"timeout,omitempty"`
	RetryMax     *int   `mapstructure:"retry_max"     yaml:"retry_max,omitempty"`
	PollInterval string `mapstructure:"poll_interval" yaml:"poll_interval,omitempty"`
	PollAttempts int    `mapstructure:"poll_attempts" yaml:"poll_attempts,omitempty"`

	Cache *oic.CacheConfig `mapstructure:"cache" yaml:"cache,omitempty"`

	// Written back after every client credentials exchange.
	CachedToken     string `mapstructure:"cached_token"      yaml:"cached_token,omitempty"`
	TokenObtainedAt string `mapstructure:"token_obtained_at" yaml:"token_obtained_at,omitempty"`
}

// profileEnvKeys can be overridden per run with OIC_<KEY> variables.
var profileEnvKeys = []string{
	"base_url", "identity_domain", "token_url", "client_id", "client_secret", "scope",
}

// BindProfileEnv binds the OIC_ environment variables of the profile keys.
func BindProfileEnv() {
	for _, key := range profileEnvKeys {
		_ = viper.BindEnv(key)
	}
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Manage OIC CLI configuration profiles and settings",
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUseCommand())

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		name    string
		profile Profile
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or replace a profile",
		Long:  "Create or replace a configuration profile. Missing values are prompted for.",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			err := promptIfEmpty(reader, out, "Profile name", &name)
			if err != nil {
				return err
			}

			for _, field := range []struct {
				label string
				value *string
			}{
				{"OIC base URL", &profile.BaseURL},
				{"Identity domain (integrationInstance)", &profile.IdentityDomain},
				{"Client ID", &profile.ClientID},
			} {
				err = promptIfEmpty(reader, out, field.label, field.value)
				if err != nil {
					return err
				}
			}

			if profile.ClientSecret == "" && profile.ClientID != "" {
				profile.ClientSecret, err = promptSecret(out, "Client secret")
				if err != nil {
					return err
				}
			}

			config, err := loadConfig()
			if err != nil {
				return err
			}

			name = normalizeProfileName(name)
			config.Profiles[name] = &profile

			if config.CurrentProfile == "" {
				config.CurrentProfile = name
			}

			err = saveConfig(config)
			if err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			_, _ = fmt.Fprintf(out, "Profile %s saved to %s\n", name, configPath())

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "profile name")
	cmd.Flags().StringVar(&profile.BaseURL, "base-url", "", "OIC design-time base URL")
	cmd.Flags().StringVar(&profile.IdentityDomain, "identity-domain", "", "identity domain sent as integrationInstance")
	cmd.Flags().StringVar(&profile.TokenURL, "token-url", "", "OAuth2 token URL (default is <base-url>/oauth2/v1/token)")
	cmd.Flags().StringVar(&profile.ClientID, "client-id", "", "OAuth2 client ID")
	cmd.Flags().StringVar(&profile.ClientSecret, "client-secret", "", "OAuth2 client secret")
	cmd.Flags().StringVar(&profile.Scope, "scope", "", "OAuth2 scope")

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [PROFILE]",
		Short: "Show current configuration",
		Long:  "Display the configured profiles with secrets masked",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			masked := maskConfig(config)

			if len(args) == 1 {
				profile, ok := masked.Profiles[normalizeProfileName(args[0])]
				if !ok {
					return fmt.Errorf("%w: %s", constants.ErrProfileNotFound, args[0])
				}

				masked = &Config{CurrentProfile: masked.CurrentProfile, Profiles: map[string]*Profile{normalizeProfileName(args[0]): profile}}
			}

			out := cmd.OutOrStdout()

			switch viper.GetString("output") {
			case OutputFormatJSON:
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")

				return encoder.Encode(masked)
			case OutputFormatYAML:
				return yaml.NewEncoder(out).Encode(masked)
			default:
				return displayConfigTable(out, masked)
			}
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a profile value",
		Long: `Set a value of the active profile (or the one given with --profile).

Keys: ` + strings.Join(profileKeys(), ", "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			name, err := profileName(config)
			if err != nil {
				return err
			}

			profile, ok := config.Profiles[name]
			if !ok {
				profile = &Profile{}
				config.Profiles[name] = profile
			}

			err = setProfileValue(profile, args[0], args[1])
			if err != nil {
				return err
			}

			err = saveConfig(config)
			if err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s for profile %s\n", args[0], name)

			return nil
		},
	}
}

func newConfigUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use PROFILE",
		Short: "Select the default profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			name := normalizeProfileName(args[0])
			if _, ok := config.Profiles[name]; !ok {
				return fmt.Errorf("%w: %s", constants.ErrProfileNotFound, args[0])
			}

			config.CurrentProfile = name

			err = saveConfig(config)
			if err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Now using profile %s\n", name)

			return nil
		},
	}
}

// normalizeProfileName lower-cases names, viper keys are case-insensitive.
func normalizeProfileName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}

	if explicit := viper.GetString("config"); explicit != "" {
		return explicit
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(configDirName, configFileName)
	}

	return filepath.Join(home, configDirName, configFileName)
}

// loadConfig returns the profiles read by viper.
func loadConfig() (*Config, error) {
	config := &Config{
		CurrentProfile: normalizeProfileName(viper.GetString("current_profile")),
		Profiles:       map[string]*Profile{},
	}

	err := viper.UnmarshalKey("profiles", &config.Profiles)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}

	if config.Profiles == nil {
		config.Profiles = map[string]*Profile{}
	}

	return config, nil
}

// saveConfig writes config and reloads it into viper.
func saveConfig(config *Config) error {
	path := configPath()

	err := os.MkdirAll(filepath.Dir(path), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = os.WriteFile(path, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	viper.SetConfigFile(path)

	err = viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	return nil
}

// profileName picks --profile, the current profile, or the only profile.
func profileName(config *Config) (string, error) {
	if name := normalizeProfileName(viper.GetString("profile")); name != "" {
		return name, nil
	}

	if config.CurrentProfile != "" {
		return config.CurrentProfile, nil
	}

	if len(config.Profiles) == 1 {
		for name := range config.Profiles {
			return name, nil
		}
	}

	return "", constants.ErrNoProfileConfigured
}

// resolveProfile returns a copy of the selected profile with OIC_ environment
// and --token overrides applied. Without any profile the environment alone
// may describe the instance.
func resolveProfile(config *Config, requested string) (string, *Profile, error) {
	name := normalizeProfileName(requested)

	var err error

	if name == "" {
		name, err = profileName(config)
	}

	resolved := &Profile{}

	switch stored, ok := config.Profiles[name]; {
	case ok:
		*resolved = *stored
	case errors.Is(err, constants.ErrNoProfileConfigured) && viper.GetString("base_url") != "":
		name = envProfileName
	case err != nil:
		return "", nil, err
	default:
		return "", nil, fmt.Errorf("%w: %s", constants.ErrProfileNotFound, name)
	}

	overrides := map[string]*string{
		"base_url":        &resolved.BaseURL,
		"identity_domain": &resolved.IdentityDomain,
		"token_url":       &resolved.TokenURL,
		"client_id":       &resolved.ClientID,
		"client_secret":   &resolved.ClientSecret,
		"scope":           &resolved.Scope,
	}

	// only the primary profile honours the environment and --token
	if requested == "" {
		for key, target := range overrides {
			if value := viper.GetString(key); value != "" {
				*target = value
			}
		}

		if token := viper.GetString("token"); token != "" {
			resolved.AccessToken = token
		}
	}

	if resolved.BaseURL == "" {
		return "", nil, fmt.Errorf("%w for profile %s", constants.ErrNoBaseURL, name)
	}

	if resolved.AccessToken == "" && (resolved.ClientID == "" || resolved.ClientSecret == "") {
		return "", nil, fmt.Errorf("%w for profile %s", constants.ErrNoCredentials, name)
	}

	return name, resolved, nil
}

var profileSetters = map[string]func(*Profile, string) error{
	"base_url":        func(p *Profile, v string) error { p.BaseURL = v; return nil },
	"identity_domain": func(p *Profile, v string) error { p.IdentityDomain = v; return nil },
	"token_url":       func(p *Profile, v string) error { p.TokenURL = v; return nil },
	"client_id":       func(p *Profile, v string) error { p.ClientID = v; return nil },
	"client_secret":   func(p *Profile, v string) error { p.ClientSecret = v; return nil },
	"scope":           func(p *Profile, v string) error { p.Scope = v; return nil },
	"access_token":    func(p *Profile, v string) error { p.AccessToken = v; return nil },
	"timeout":         func(p *Profile, v string) error { p.Timeout = v; return nil },
	"poll_interval":   func(p *Profile, v string) error { p.PollInterval = v; return nil },
	"retry_max": func(p *Profile, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid retry_max %q: %w", v, err)
		}

		p.RetryMax = &n

		return nil
	},
	"poll_attempts": func(p *Profile, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid poll_attempts %q: %w", v, err)
		}

		p.PollAttempts = n

		return nil
	},
	"cache": func(p *Profile, v string) error {
		switch oic.CacheType(v) {
		case oic.CacheTypeNone:
			p.Cache = nil
		case oic.CacheTypeMemory:
			p.Cache = oic.DefaultCacheConfig()
		case oic.CacheTypeNATS:
			p.Cache = &oic.CacheConfig{Type: oic.CacheTypeNATS, NATS: &oic.NATSKVConfig{URL: "nats://127.0.0.1:4222", Bucket: constants.DefaultNATSBucket}}
		default:
			return fmt.Errorf("%w: %s", oic.ErrUnsupportedCacheType, v)
		}

		return nil
	},
	"cache_nats_url": func(p *Profile, v string) error {
		if p.Cache == nil || p.Cache.NATS == nil {
			p.Cache = &oic.CacheConfig{Type: oic.CacheTypeNATS, NATS: &oic.NATSKVConfig{Bucket: constants.DefaultNATSBucket}}
		}

		p.Cache.NATS.URL = v

		return nil
	},
}

func profileKeys() []string {
	keys := make([]string, 0, len(profileSetters))
	for key := range profileSetters {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func setProfileValue(profile *Profile, key, value string) error {
	setter, ok := profileSetters[strings.ReplaceAll(strings.ToLower(key), "-", "_")]
	if !ok {
		return fmt.Errorf("%w: %s", constants.ErrUnknownConfigKey, key)
	}

	return setter(profile, value)
}

func maskConfig(config *Config) *Config {
	masked := &Config{CurrentProfile: config.CurrentProfile, Profiles: map[string]*Profile{}}

	for name, profile := range config.Profiles {
		copied := *profile
		copied.ClientSecret = maskValue(copied.ClientSecret)
		copied.AccessToken = maskValue(copied.AccessToken)
		copied.CachedToken = maskValue(copied.CachedToken)
		masked.Profiles[name] = &copied
	}

	return masked
}

func maskValue(value string) string {
	if value == "" {
		return ""
	}

	return Masked
}

func displayConfigTable(out io.Writer, config *Config) error {
	if len(config.Profiles) == 0 {
		_, _ = io.WriteString(out, "No profiles configured. Use 'oic config init' to add one.\n")

		return nil
	}

	names := make([]string, 0, len(config.Profiles))
	for name := range config.Profiles {
		names = append(names, name)
	}

	sort.Strings(names)

	table := tablewriter.NewWriter(out)
	table.Header("Profile", "Base URL", "Identity Domain", "Auth", "Cache", "Current")

	for _, name := range names {
		profile := config.Profiles[name]

		authMode := "client credentials"
		if profile.AccessToken != "" {
			authMode = "static token"
		}

		cacheType := string(oic.CacheTypeNone)
		if profile.Cache != nil {
			cacheType = string(profile.Cache.Type)
		}

		current := ""
		if name == config.CurrentProfile {
			current = "*"
		}

		_ = table.Append([]string{name, formatValue(profile.BaseURL), formatValue(profile.IdentityDomain), authMode, cacheType, current})
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func promptIfEmpty(reader *bufio.Reader, out io.Writer, label string, value *string) error {
	if *value != "" {
		return nil
	}

	_, _ = fmt.Fprintf(out, "%s: ", label)

	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}

	*value = strings.TrimSpace(line)

	return nil
}

func promptSecret(out io.Writer, label string) (string, error) {
	_, _ = fmt.Fprintf(out, "%s: ", label)

	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}

	_, _ = io.WriteString(out, "\n")

	return string(secret), nil
}
