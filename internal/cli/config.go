package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Configuration keys. Each is settable by flag, DOCSQL_<KEY> environment
// variable, or docsql.yaml, in that order of precedence.
const (
	KeySchema  = "schema"
	KeyDB      = "db"
	KeyFormat  = "format"
	KeyVerbose = "verbose"
)

const envPrefix = "DOCSQL"

// newConfig creates a viper instance reading docsql.yaml from the working
// directory or $HOME/.config/docsql.
func newConfig(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)

	v.SetConfigName("docsql")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "docsql"))
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault(KeyFormat, "text")
	return v
}

// loadConfig reads .env and the config file. Neither has to exist.
func loadConfig(v *viper.Viper, fs afero.Fs) error {
	if err := loadDotEnv(fs, ".env"); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

// loadDotEnv exports DOCSQL_ variables from a dotenv file. Variables
// already set in the environment win.
func loadDotEnv(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for key, value := range vars {
		if !strings.HasPrefix(key, envPrefix+"_") {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("exporting %s: %w", key, err)
		}
	}
	return nil
}
