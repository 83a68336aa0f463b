package config_test

import (
	"fmt"
	"time"

	"github.com/keytally/keytally/internal/config"
)

// Example of creating a default configuration
func ExampleDefault() {
	cfg := config.Default()
	fmt.Println("Flush Interval:", cfg.Tracker.FlushInterval)
	fmt.Println("App Check Interval:", cfg.Tracker.AppCheckInterval)
	fmt.Println("Web Port:", cfg.Web.Port)
	// Output:
	// Flush Interval: 5s
	// App Check Interval: 500ms
	// Web Port: 7878
}

// Example of setting flush interval with validation
func ExampleConfig_SetFlushInterval() {
	cfg := config.Default()

	if err := cfg.SetFlushInterval(30 * time.Second); err != nil {
		fmt.Println("Error:", err)
	} else {
		fmt.Println("Flush interval set to:", cfg.Tracker.FlushInterval)
	}

	// Too low
	if err := cfg.SetFlushInterval(100 * time.Millisecond); err != nil {
		fmt.Println("Error:", err)
	}

	// Output:
	// Flush interval set to: 30s
	// Error: flush interval cannot be less than 1s
}

// Example of computing the retention cutoff date
func ExampleConfig_RetentionCutoff() {
	cfg := config.Default()
	_ = cfg.SetRetentionDays(7)

	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	fmt.Println("Keep from:", cfg.RetentionCutoff(now))

	_ = cfg.SetRetentionDays(-1)
	fmt.Printf("Forever: %q\n", cfg.RetentionCutoff(now))

	// Output:
	// Keep from: 2024-03-04
	// Forever: ""
}

// Example of validating configuration
func ExampleConfig_Validate() {
	cfg := config.Default()

	if err := cfg.Validate(); err != nil {
		fmt.Println("Invalid config:", err)
	} else {
		fmt.Println("Configuration is valid")
	}

	// Output:
	// Configuration is valid
}
