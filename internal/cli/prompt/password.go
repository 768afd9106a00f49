package prompt

import "github.com/manifoldco/promptui"

// Password prompts for a password input with masking, used when a SQL
// login or NTLM credential is required and none was supplied on the
// command line.
func Password(label string) (string, error) {
	prompt := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}

	result, err := prompt.Run()
	return result, wrapError(err)
}
