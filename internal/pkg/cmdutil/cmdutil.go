/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cmdutil contains helpers for reading command-line parameters that may
// also be given as environment variables.
package cmdutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// GetOptionalString returns the value of the given command-line flag or, if the
// flag was not set, the value of the given environment variable.
func GetOptionalString(cmd *cobra.Command, flagName, envKey string) string {
	v, _ := GetString(cmd, flagName, envKey, true)

	return v
}

// GetString returns the value of the given command-line flag or, if the flag
// was not set, the value of the given environment variable. An error is
// returned if the parameter is not optional and neither is set.
func GetString(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf("%s flag not found: %w", flagName, err)
		}

		if value == "" {
			return "", fmt.Errorf("%s value is empty", flagName)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		if !isOptional && value == "" {
			return "", fmt.Errorf("%s value is empty", envKey)
		}

		return value, nil
	}

	return "", fmt.Errorf("neither %s (command line flag) nor %s (environment variable) have been set",
		flagName, envKey)
}

// GetOptionalStringArray returns the values of the given command-line flag or,
// if the flag was not set, the comma-separated values of the given environment
// variable.
func GetOptionalStringArray(cmd *cobra.Command, flagName, envKey string) []string {
	v, _ := GetStringArray(cmd, flagName, envKey, true)

	return v
}

// GetStringArray returns the values of the given command-line flag or, if the
// flag was not set, the comma-separated values of the given environment
// variable. An error is returned if the parameter is not optional and neither
// is set.
func GetStringArray(cmd *cobra.Command, flagName, envKey string, isOptional bool) ([]string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetStringArray(flagName)
		if err != nil {
			return nil, fmt.Errorf("%s flag not found: %w", flagName, err)
		}

		if len(value) == 0 {
			return nil, fmt.Errorf("%s value is empty", flagName)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		if !isOptional && value == "" {
			return nil, fmt.Errorf("%s value is empty", envKey)
		}

		if value == "" {
			return nil, nil
		}

		return strings.Split(value, ","), nil
	}

	return nil, fmt.Errorf("neither %s (command line flag) nor %s (environment variable) have been set",
		flagName, envKey)
}
