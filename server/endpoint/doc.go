// Package endpoint holds operational handlers shared by Gustav servers.
package endpoint
