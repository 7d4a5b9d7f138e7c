package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/leafwise/internal/config"
	"github.com/kalambet/leafwise/internal/identify"
	"github.com/kalambet/leafwise/internal/scan"
)

// --- identify ---

var identifyCmd = &cobra.Command{
	Use:   "identify <photo>",
	Short: "Identify a plant photo and add it to the collection",
	Long: `Identify a plant photo and add it to the collection.

Examples:
  leafwise identify ./monstera.jpg
  leafwise identify ./fern.png --name "Boston fern"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		scientific, _ := cmd.Flags().GetString("scientific-name")

		image, err := readPhoto(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Identifying %s", args[0])
		resp, err := client.post(cmd.Context(), "/identify", identify.Request{
			Image:              image,
			CommonNameHint:     name,
			ScientificNameHint: scientific,
		})
		if err != nil {
			return err
		}

		var s scan.Scan
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		printSuccess("Added %s (%s)", s.CommonName, shortID(s.ID))
		printScan(os.Stdout, s)
		return nil
	},
}

func init() {
	identifyCmd.Flags().String("name", "", "common name, if already known")
	identifyCmd.Flags().String("scientific-name", "", "scientific name, if already known")
}

// --- diagnose ---

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <photo>",
	Short: "Check a plant photo for diseases, pests or deficiencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := readPhoto(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Diagnosing %s", args[0])
		resp, err := client.post(cmd.Context(), "/diagnose", map[string]string{"image": image})
		if err != nil {
			return err
		}

		var d identify.Diagnosis
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}
		printDiagnosis(os.Stdout, d)
		return nil
	},
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a plant by hand",
	Long: `Add a plant by hand. Manual entries start as favourites.

Example:
  leafwise add --photo ./basil.jpg --name Basil --scientific-name "Ocimum basilicum"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		photo, _ := cmd.Flags().GetString("photo")
		name, _ := cmd.Flags().GetString("name")
		scientific, _ := cmd.Flags().GetString("scientific-name")
		care, _ := cmd.Flags().GetString("care")
		notes, _ := cmd.Flags().GetString("notes")

		if photo == "" || name == "" || scientific == "" {
			return fmt.Errorf("--photo, --name and --scientific-name are required")
		}

		image, err := readPhoto(photo)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/scans", scan.ManualEntry{
			Image:          image,
			CommonName:     name,
			ScientificName: scientific,
			CareTips:       care,
			Notes:          notes,
		})
		if err != nil {
			return err
		}

		var s scan.Scan
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		printSuccess("Added %s (%s)", s.CommonName, shortID(s.ID))
		return nil
	},
}

func init() {
	addCmd.Flags().String("photo", "", "photo file")
	addCmd.Flags().String("name", "", "common name")
	addCmd.Flags().String("scientific-name", "", "scientific name")
	addCmd.Flags().String("care", "", "care tips")
	addCmd.Flags().String("notes", "", "personal notes")
}

// --- list / show ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the collection, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		favorites, _ := cmd.Flags().GetBool("favorites")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/scans"
		if favorites {
			path += "?favorites=true"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var list []scan.Scan
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}
		printScanList(os.Stdout, list)
		return nil
	},
}

func init() {
	listCmd.Flags().Bool("favorites", false, "only list favourites")
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one plant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := resolveID(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), scanPath(id))
		if err != nil {
			return err
		}

		var s scan.Scan
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		printScan(os.Stdout, s)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "print the full record, photo included, as JSON")
}

// --- mutations ---

var favoriteCmd = &cobra.Command{
	Use:   "favorite <id>",
	Short: "Toggle the favourite flag of a plant, or set it with --on/--off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, _ := cmd.Flags().GetBool("on")
		off, _ := cmd.Flags().GetBool("off")
		if on && off {
			return fmt.Errorf("--on and --off are mutually exclusive")
		}

		s, err := mutate(cmd, args[0], func(c *apiClient, id string) (*http.Response, error) {
			if on || off {
				return c.put(cmd.Context(), scanPath(id, "favorite"), map[string]bool{"favorite": on})
			}
			return c.post(cmd.Context(), scanPath(id, "favorite"), nil)
		})
		if err != nil {
			return err
		}
		if s.IsFavorite {
			printSuccess("%s added to favourites", s.CommonName)
		} else {
			printSuccess("%s removed from favourites", s.CommonName)
		}
		return nil
	},
}

func init() {
	favoriteCmd.Flags().Bool("on", false, "mark as favourite")
	favoriteCmd.Flags().Bool("off", false, "remove from favourites")
}

var noteCmd = &cobra.Command{
	Use:   "note <id> [text...]",
	Short: "Replace the notes of a plant; no text clears them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes := strings.Join(args[1:], " ")
		s, err := mutate(cmd, args[0], func(c *apiClient, id string) (*http.Response, error) {
			return c.put(cmd.Context(), scanPath(id, "notes"), map[string]string{"notes": notes})
		})
		if err != nil {
			return err
		}
		printSuccess("Updated notes for %s", s.CommonName)
		return nil
	},
}

var remindCmd = &cobra.Command{
	Use:   "remind <id>",
	Short: "Set or clear a watering reminder",
	Long: `Set or clear a watering reminder.

Examples:
  leafwise remind 3f2a91c0 --every 7
  leafwise remind 3f2a91c0 --off`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		every, _ := cmd.Flags().GetInt("every")
		off, _ := cmd.Flags().GetBool("off")
		if off == (every != 0) {
			return fmt.Errorf("exactly one of --every or --off is required")
		}

		s, err := mutate(cmd, args[0], func(c *apiClient, id string) (*http.Response, error) {
			if off {
				return c.delete(cmd.Context(), scanPath(id, "reminder"))
			}
			return c.put(cmd.Context(), scanPath(id, "reminder"), map[string]int{"frequencyDays": every})
		})
		if err != nil {
			return err
		}
		if s.Reminder == nil {
			printSuccess("Reminder cleared for %s", s.CommonName)
			return nil
		}
		printSuccess("Water %s every %d days, next on %s", s.CommonName, s.Reminder.FrequencyDays, formatDate(s.Reminder.NextDue()))
		return nil
	},
}

func init() {
	remindCmd.Flags().Int("every", 0, "watering frequency in days")
	remindCmd.Flags().Bool("off", false, "clear the reminder")
}

var wateredCmd = &cobra.Command{
	Use:   "watered <id>",
	Short: "Record that a plant was watered now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mutate(cmd, args[0], func(c *apiClient, id string) (*http.Response, error) {
			return c.post(cmd.Context(), scanPath(id, "watered"), nil)
		})
		if err != nil {
			return err
		}
		if s.Reminder == nil {
			printSuccess("Watered %s", s.CommonName)
			return nil
		}
		printSuccess("Watered %s, next on %s", s.CommonName, formatDate(s.Reminder.NextDue()))
		return nil
	},
}

// mutate resolves the id argument, runs call and decodes the updated scan.
func mutate(cmd *cobra.Command, idArg string, call func(c *apiClient, id string) (*http.Response, error)) (scan.Scan, error) {
	client, err := newAPIClient()
	if err != nil {
		return scan.Scan{}, err
	}
	id, err := resolveID(cmd.Context(), client, idArg)
	if err != nil {
		return scan.Scan{}, err
	}

	resp, err := call(client, id)
	if err != nil {
		return scan.Scan{}, err
	}

	var s scan.Scan
	if err := decodeJSON(resp, &s); err != nil {
		return scan.Scan{}, err
	}
	return s, nil
}

// --- reminders ---

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List plants that need watering",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/reminders/due")
		if err != nil {
			return err
		}

		var due []struct {
			scan.Scan
			DueAt time.Time `json:"dueAt"`
		}
		if err := decodeJSON(resp, &due); err != nil {
			return err
		}

		if len(due) == 0 {
			fmt.Println("Nothing needs watering.")
			return nil
		}
		for _, d := range due {
			fmt.Printf("%s  %s  due %s\n",
				colorize(colorCyan, shortID(d.ID)),
				d.CommonName,
				formatDate(d.DueAt),
			)
		}
		return nil
	},
}

// --- delete / clear ---

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a plant from the collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id, err := resolveID(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), scanPath(id))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted %s", shortID(id))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every plant from the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("this deletes the whole collection; re-run with --confirm")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/scans")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Collection cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm clearing the collection")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		fmt.Println()
		fmt.Println(config.SecretsHint())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nValid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- rendering ---

func formatDate(t time.Time) string {
	return t.Local().Format("Mon 2 Jan 2006")
}

func printScanList(w io.Writer, list []scan.Scan) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No plants yet.")
		return
	}
	for _, s := range list {
		star := " "
		if s.IsFavorite {
			star = colorize(colorYellow, "★")
		}
		fmt.Fprintf(w, "%s %s  %-24s %s  %s\n",
			colorize(colorCyan, shortID(s.ID)),
			star,
			truncate(s.CommonName, 24),
			truncate(s.ScientificName, 32),
			time.UnixMilli(s.CreatedAt).Local().Format("2006-01-02"),
		)
	}
}

func printScan(w io.Writer, s scan.Scan) {
	title := s.CommonName
	if s.IsFavorite {
		title += " ★"
	}
	fmt.Fprintln(w, colorize(colorBold, title))
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "  %-12s %s\n", label+":", value)
		}
	}
	field("Scientific", s.ScientificName)
	field("Id", s.ID)
	field("Confidence", fmt.Sprintf("%.0f%%", s.Confidence*100))
	field("Added", time.UnixMilli(s.CreatedAt).Local().Format("2006-01-02 15:04"))
	field("Type", s.PlantType)
	field("Origin", s.Origin)
	field("Growth", s.GrowthHabit)
	field("Flowering", s.FloweringPeriod)
	field("Toxicity", s.Toxicity)
	if s.Reminder != nil {
		field("Water", fmt.Sprintf("every %d days, next %s", s.Reminder.FrequencyDays, formatDate(s.Reminder.NextDue())))
	}
	field("Notes", s.Notes)

	if s.CareTips != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", colorize(colorBold, "Care"), s.CareTips)
	}
	if s.PropagationTips != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", colorize(colorBold, "Propagation"), s.PropagationTips)
	}
	if s.FunFact != "" {
		fmt.Fprintf(w, "\n%s %s\n", colorize(colorBold, "Did you know?"), s.FunFact)
	}
	if len(s.Suggestions) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Similar plants"))
		for _, sg := range s.Suggestions {
			fmt.Fprintf(w, "  - %s (%s)\n", sg.CommonName, sg.ScientificName)
		}
	}
}

func printDiagnosis(w io.Writer, d identify.Diagnosis) {
	if d.IsHealthy && len(d.Issues) == 0 {
		fmt.Fprintln(w, colorize(colorGreen, "The plant looks healthy."))
		return
	}
	if d.IsHealthy {
		fmt.Fprintln(w, colorize(colorGreen, "The plant looks mostly healthy."))
	} else {
		fmt.Fprintln(w, colorize(colorYellow, "Possible problems found."))
	}
	for _, is := range d.Issues {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, is.Issue))
		if is.Description != "" {
			fmt.Fprintf(w, "  %s\n", is.Description)
		}
		if is.Treatment != "" {
			fmt.Fprintf(w, "  Treatment: %s\n", is.Treatment)
		}
	}
}
