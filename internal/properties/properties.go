package properties

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the first .env file found in paths. A missing file is not an
// error, the process environment is used as is.
func Load(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		return godotenv.Load(p)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func RootPath() string {
	return getenv("ROOT_PATH", ".")
}

func WorkDir() string {
	return getenv("ARD_WORK_DIR", RootPath()+"/work")
}

func OutputDir() string {
	return getenv("ARD_OUTPUT_DIR", RootPath()+"/output")
}

func MosaicDir() string {
	return getenv("ARD_MOSAIC_DIR", RootPath()+"/mosaic")
}

func LedgerPath() string {
	return getenv("ARD_LEDGER_PATH", WorkDir()+"/ard.db")
}

func Sen2CorBin() string {
	return getenv("SEN2COR_BIN", "L2A_Process")
}

func FmaskBin() string {
	return getenv("FMASK_BIN", "fmask_sentinel2Stacked.py")
}

// Workers is the default tile concurrency, 1 keeps processing sequential.
func Workers() int {
	n, err := strconv.Atoi(os.Getenv("ARD_WORKERS"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}
