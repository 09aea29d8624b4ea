package cli

import (
	"errors"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/rcliao/elara-memory/internal/model"
	"github.com/rcliao/elara-memory/internal/store"
)

func init() {
	profile := &cobra.Command{
		Use:   "profile",
		Short: "Inspect or edit the user profile",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the user profile",
		Args:  cobra.NoArgs,
		Run:   runProfileGet,
	}

	set := &cobra.Command{
		Use:   "set <key> <value>...",
		Short: "Set a preference",
		Long: "Set a preference. The value is stored as a boolean or number when it parses\n" +
			"as one, otherwise as a string. With --list every value is kept as a list item.",
		Args: cobra.MinimumNArgs(2),
		Run:  runProfileSet,
	}
	set.Flags().Bool("list", false, "Store the values as a list of strings")

	unset := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a preference",
		Args:  cobra.ExactArgs(1),
		Run:   runProfileUnset,
	}

	profile.AddCommand(get, set, unset)
	RootCmd.AddCommand(profile)
}

func runProfileGet(cmd *cobra.Command, args []string) {
	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	printResult(cmd, loadProfile(cmd, s))
}

func runProfileSet(cmd *cobra.Command, args []string) {
	asList, _ := cmd.Flags().GetBool("list")

	var pref model.Preference
	switch {
	case asList:
		pref = model.ListPref(args[1:]...)
	case len(args) > 2:
		exitErr("profile set", goerr.New("multiple values need --list"))
	default:
		pref = parsePreference(args[1])
	}

	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p := loadProfile(cmd, s)
	p.Preferences[args[0]] = pref
	saved, err := s.SaveProfile(cmd.Context(), p)
	if err != nil {
		exitErr("profile set", err)
	}

	printResult(cmd, saved)
}

func runProfileUnset(cmd *cobra.Command, args []string) {
	s, err := openStore(cmd)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p := loadProfile(cmd, s)
	delete(p.Preferences, args[0])
	saved, err := s.SaveProfile(cmd.Context(), p)
	if err != nil {
		exitErr("profile unset", err)
	}

	printResult(cmd, saved)
}

// loadProfile returns the stored default profile, or an empty one.
func loadProfile(cmd *cobra.Command, s store.Store) *model.Profile {
	p, err := s.GetProfile(cmd.Context(), model.DefaultProfileID)
	if errors.Is(err, store.ErrNotFound) {
		return model.NewProfile(model.DefaultProfileID)
	}
	if err != nil {
		exitErr("get profile", err)
	}
	if p.Preferences == nil {
		p.Preferences = model.Preferences{}
	}
	return p
}

func parsePreference(v string) model.Preference {
	if b, err := strconv.ParseBool(v); err == nil {
		return model.BoolPref(b)
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return model.NumberPref(f)
	}
	return model.StringPref(v)
}
