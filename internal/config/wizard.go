package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and saves the
// resulting Config to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to rvtstudio! Let's connect to your family catalog.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Backend.
	backendPrompt := promptui.Prompt{
		Label:    "Catalog backend URL",
		Default:  DefaultBackendURL,
		Validate: validateURL,
	}
	backendURL, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	cfg.BackendURL = strings.TrimRight(backendURL, "/")

	// 2. Default access tier for newly uploaded families.
	tierPrompt := promptui.Select{
		Label: "Default tier for uploaded families",
		Items: []string{
			"free    - visible to every account",
			"premium - visible to premium subscribers only",
		},
	}
	tierIdx, _, err := tierPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("tier selection: %w", err)
	}
	cfg.Defaults.Freemium = []Tier{TierFree, TierPremium}[tierIdx]

	// 3. Upload concurrency.
	concurrencyPrompt := promptui.Prompt{
		Label:    "Parallel uploads (0 = unlimited)",
		Default:  strconv.Itoa(cfg.MaxConcurrency),
		Validate: validateNonNegative,
	}
	concurrencyStr, err := concurrencyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("concurrency: %w", err)
	}
	cfg.MaxConcurrency, _ = strconv.Atoi(concurrencyStr)

	// 4. Thumbnail size.
	sizePrompt := promptui.Prompt{
		Label:    "Resize thumbnails to (pixels, 0 = keep original)",
		Default:  strconv.Itoa(cfg.Upload.ThumbnailSize),
		Validate: validateNonNegative,
	}
	sizeStr, err := sizePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("thumbnail size: %w", err)
	}
	cfg.Upload.ThumbnailSize, _ = strconv.Atoi(sizeStr)

	// 5. Extra exclude patterns.
	excludePrompt := promptui.Prompt{
		Label:   "Extra exclude patterns (comma-separated, leave blank for defaults)",
		Default: "",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	if excludeStr != "" {
		cfg.Upload.Exclude = append(cfg.Upload.Exclude, splitAndTrim(excludeStr)...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	fmt.Println("Run `rvtstudio login` to sign in.")
	return cfg, nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter an absolute URL such as %s", DefaultBackendURL)
	}
	return nil
}

func validateNonNegative(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("enter a whole number >= 0")
	}
	return nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
