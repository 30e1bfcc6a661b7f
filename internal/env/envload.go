package env

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FileName is the dotenv file searched for by Ensure.
const FileName = ".env"

var (
	loadOnce   sync.Once
	loadedPath string
	loadErr    error
)

// Ensure loads the nearest .env file walking up from the working directory.
// Values already present in the process environment win. Only the first
// call does any work.
func Ensure() error {
	// Tests stay hermetic unless GOTEST_LOAD_DOTENV=1.
	if runningUnderGoTest() && os.Getenv("GOTEST_LOAD_DOTENV") != "1" {
		return nil
	}
	loadOnce.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			loadErr = errors.Wrap(err, "resolve working directory")
			return
		}
		path, err := FindUp(wd, FileName)
		if err != nil {
			loadErr = err
			log.Debug().Err(err).Msg("isrsim: search .env failed")
			return
		}
		if path == "" {
			return
		}
		if err := godotenv.Load(path); err != nil {
			loadErr = errors.Wrapf(err, "load %s", path)
			log.Warn().Err(err).Str("dotenv", path).Msg("isrsim: load .env failed")
			return
		}
		loadedPath = path
		log.Debug().Str("dotenv", path).Msg("isrsim: loaded .env")
	})
	return loadErr
}

// LoadedPath returns the .env path Ensure loaded, or "".
func LoadedPath() string {
	return loadedPath
}

// FindUp returns the first regular file called name in dir or one of its
// parents, or "" when none exists.
func FindUp(dir, name string) (string, error) {
	for {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "stat %s", candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func runningUnderGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}
