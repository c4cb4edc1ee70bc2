// Package config defines the settings used by the sleepwatch binaries and
// provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the classifier and control addresses, polling
// parameters, audio backend selection and detector model settings.
package config
