/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cmdutil resolves command parameters from either a command line flag
// or, when the flag was not set, an environment variable.
package cmdutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// GetUserSetVarFromString returns the value of the given flag or, if the flag
// was not set on the command line, the value of the given environment
// variable. An empty value is an error. If isOptional is true then an unset
// variable yields the empty string instead of an error.
func GetUserSetVarFromString(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf("%s flag not found: %s", flagName, err)
		}

		if value == "" {
			return "", fmt.Errorf("%s value is empty", flagName)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if !isOptional && !isSet {
		return "", unsetError(flagName, envKey)
	}

	if !isOptional && value == "" {
		return "", fmt.Errorf("%s value is empty", envKey)
	}

	return value, nil
}

// GetUserSetOptionalVarFromString is GetUserSetVarFromString for an optional
// parameter, where the only possible errors are flag-definition mistakes.
func GetUserSetOptionalVarFromString(cmd *cobra.Command, flagName, envKey string) string {
	value, _ := GetUserSetVarFromString(cmd, flagName, envKey, true)

	return value
}

// GetUserSetVarFromArrayString is the array form of GetUserSetVarFromString.
// The environment variable holds the values separated by commas.
func GetUserSetVarFromArrayString(cmd *cobra.Command, flagName, envKey string, isOptional bool) ([]string, error) {
	if cmd.Flags().Changed(flagName) {
		values, err := cmd.Flags().GetStringArray(flagName)
		if err != nil {
			return nil, fmt.Errorf("%s flag not found: %s", flagName, err)
		}

		if len(values) == 0 {
			return nil, fmt.Errorf("%s value is empty", flagName)
		}

		return values, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if !isOptional && !isSet {
		return nil, unsetError(flagName, envKey)
	}

	if value == "" {
		if !isOptional {
			return nil, fmt.Errorf("%s value is empty", envKey)
		}

		return []string{}, nil
	}

	return strings.Split(value, ","), nil
}

// GetUserSetOptionalVarFromArrayString is GetUserSetVarFromArrayString for an
// optional parameter.
func GetUserSetOptionalVarFromArrayString(cmd *cobra.Command, flagName, envKey string) []string {
	values, _ := GetUserSetVarFromArrayString(cmd, flagName, envKey, true)

	return values
}

func unsetError(flagName, envKey string) error {
	//nolint:stylecheck // the message is part of the command's documented output
	return fmt.Errorf("Neither %s (command line flag) nor %s (environment variable) have been set.",
		flagName, envKey)
}
