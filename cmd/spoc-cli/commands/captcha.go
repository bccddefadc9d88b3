package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(captchaCmd)
}

var captchaCmd = &cobra.Command{
	Use:   "captcha [account]",
	Short: "Checks whether logging in needs a captcha.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		account := config.Account
		if len(args) > 0 {
			account = args[0]
		}
		if account == "" {
			return fmt.Errorf("no account given")
		}

		c, err := newCrawler(config)
		if err != nil {
			return err
		}
		need, err := c.CaptchaRequired(cmd.Context(), account)
		if err != nil {
			return err
		}
		fmt.Println(need)
		return nil
	},
}
