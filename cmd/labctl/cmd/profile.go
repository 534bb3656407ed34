package cmd

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/acqlab/instrumentd/pkg/profile"
)

var (
	profileName string
	profileOut  string
)

// profileCmd represents the profile command
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Work with device profiles",
	Long:  `Commands for capturing the daemon's live device set as a profile that can be loaded again on daemon start.`,
}

var profileSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the attached devices as a profile",
	Long:  `Fetch the currently attached devices, arguments included, and write them as a profile file. Without --out the profile is printed to stdout.`,
	RunE:  runProfileSave,
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSaveCmd)

	profileSaveCmd.Flags().StringVar(&profileName, "name", "current", "name recorded in the profile")
	profileSaveCmd.Flags().StringVar(&profileOut, "out", "", "file to write; stdout when empty")
}

func runProfileSave(cmd *cobra.Command, args []string) error {
	var p profile.Profile
	if err := apiCall("GET", "/profile?name="+url.QueryEscape(profileName), nil, &p); err != nil {
		return err
	}

	if profileOut != "" {
		if err := p.Save(profileOut); err != nil {
			return err
		}
		fmt.Printf("Profile %s saved to %s (%d devices)\n", p.Name, profileOut, len(p.Devices))
		return nil
	}

	if IsJSONOutput() {
		return printJSON(p)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	os.Stdout.Write(data)
	return nil
}
