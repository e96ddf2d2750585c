// SPDX-License-Identifier: MPL-2.0

// Package reaper reclaims the containers and images a runtime creates. A
// background loop removes tracked containers periodically; Shutdown removes
// everything that is still tracked. Removal failures keep the resource
// tracked for the next attempt and are never surfaced to callers.
package reaper
