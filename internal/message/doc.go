// Package message defines the resolved unit handed to the rest of the app.
package message
