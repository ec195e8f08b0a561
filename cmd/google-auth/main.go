// Command google-auth completes the OAuth2 authorization for a Google
// Calendar store and lists the calendar ids the account can see.
//
// Usage:
//
//	google-auth <credentials-file> <token-file>               print the authorization URL
//	google-auth -code CODE <credentials-file> <token-file>    exchange the code and save the token
//	google-auth -list <credentials-file> <token-file>         list calendar ids for config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/venkytv/calendar-grid/pkg/calendar"
	"github.com/venkytv/calendar-grid/pkg/calendar/google"
)

const separator = "================================================================"

var (
	code  = flag.String("code", "", "Authorization code to exchange for a token")
	list  = flag.Bool("list", false, "List the calendars of the authorized account")
	debug = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flag.NArg() != 2 {
		printUsage()
		os.Exit(1)
	}
	credentialsFile, tokenFile := flag.Arg(0), flag.Arg(1)

	if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
		logger.Error("Credentials file not found", "file", credentialsFile)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	switch {
	case *list:
		err = listCalendars(ctx, credentialsFile, tokenFile, logger)
	case *code != "":
		err = exchange(ctx, credentialsFile, tokenFile, *code, logger)
	default:
		err = printAuthURL(credentialsFile, tokenFile, logger)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printAuthURL(credentialsFile, tokenFile string, logger *slog.Logger) error {
	tm, err := google.NewTokenManager(credentialsFile, tokenFile, logger)
	if err != nil {
		return err
	}

	fmt.Println(separator)
	fmt.Println("GOOGLE CALENDAR AUTHORIZATION")
	fmt.Println(separator)
	fmt.Println("\nStep 1: Visit this URL in your browser:")
	fmt.Println("\n" + tm.GetAuthURL("calendar-grid"))
	fmt.Println("\nStep 2: Sign in and authorize the application")
	fmt.Println("\nStep 3: Run this command again with the code:")
	fmt.Printf("\n  google-auth -code \"YOUR_AUTH_CODE\" %s %s\n\n", credentialsFile, tokenFile)
	fmt.Println(separator)
	return nil
}

func exchange(ctx context.Context, credentialsFile, tokenFile, authCode string, logger *slog.Logger) error {
	tm, err := google.NewTokenManager(credentialsFile, tokenFile, logger)
	if err != nil {
		return err
	}
	if _, err := tm.ExchangeCode(ctx, authCode); err != nil {
		return err
	}
	fmt.Printf("Token saved to %s\n", tokenFile)
	fmt.Println("Run again with -list to see the available calendar ids.")
	return nil
}

func listCalendars(ctx context.Context, credentialsFile, tokenFile string, logger *slog.Logger) error {
	if _, err := os.Stat(tokenFile); os.IsNotExist(err) {
		return fmt.Errorf("token file not found: %s (authorize first)", tokenFile)
	}

	store := google.NewStore()
	store.SetLogger(logger)
	err := store.Initialize(ctx, calendar.StoreConfig{
		Name:            "google",
		CredentialsPath: credentialsFile,
		TokenPath:       tokenFile,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	calendars, err := store.Calendars(ctx)
	if err != nil {
		return err
	}
	if len(calendars) == 0 {
		fmt.Println("No calendars found in your Google account.")
		return nil
	}

	fmt.Printf("\nFound %d calendar(s):\n\n", len(calendars))
	fmt.Println(separator)
	for i, cal := range calendars {
		fmt.Printf("%d. %s\n", i+1, cal.Name)
		fmt.Printf("   ID: %s\n", cal.ID)
		if cal.Description != "" {
			fmt.Printf("   Description: %s\n", cal.Description)
		}
		if cal.Primary {
			fmt.Printf("   *** PRIMARY CALENDAR ***\n")
		}
		fmt.Printf("   Writable: %t\n", cal.Writable)
		if cal.TimeZone != "" {
			fmt.Printf("   Timezone: %s\n", cal.TimeZone)
		}
		fmt.Println()
	}
	fmt.Println(separator)

	fmt.Println("\nTo use these calendars in your config.yaml, add to the store:")
	fmt.Println("\n    calendar_ids:")
	for _, cal := range calendars {
		suffix := ""
		if cal.Primary {
			suffix = " (PRIMARY)"
		}
		fmt.Printf("      - %q  # %s%s\n", cal.ID, cal.Name, suffix)
	}
	fmt.Println()
	return nil
}

func printUsage() {
	fmt.Println("Google Calendar OAuth2 Authentication Helper")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  google-auth <credentials-file> <token-file>")
	fmt.Println("  google-auth -code <auth-code> <credentials-file> <token-file>")
	fmt.Println("  google-auth -list <credentials-file> <token-file>")
	fmt.Println()
	fmt.Println("Arguments:")
	fmt.Println("  credentials-file  Path to Google OAuth2 credentials JSON")
	fmt.Println("  token-file        Path where the token is saved")
	fmt.Println()
}
