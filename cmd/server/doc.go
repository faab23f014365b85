// Command server runs the termcore terminal service.
package main
