// Package errs classifies bridge errors so pipelines can decide whether to skip a
// signal, retry a delivery, or disable a topic.
package errs

import (
	"errors"
	"fmt"
)

// Class is the handling classification of an error.
type Class int

const (
	// Transient errors may succeed when retried (sink or broker hiccups).
	Transient Class = iota
	// Invalid errors come from bad input; the item is skipped.
	Invalid
	// Fatal errors disable the affected component until it is rebuilt.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Invalid:
		return "invalid"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classified wraps an error with its class and the component/operation it came from.
type Classified struct {
	Class     Class
	Err       error
	Component string
	Operation string
}

func (c *Classified) Error() string { return c.Err.Error() }

func (c *Classified) Unwrap() error { return c.Err }

// Wrap adds "component.method: action failed" context.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func WrapTransient(err error, component, method, action string) error {
	return wrapClass(Transient, err, component, method, action)
}

func WrapInvalid(err error, component, method, action string) error {
	return wrapClass(Invalid, err, component, method, action)
}

func WrapFatal(err error, component, method, action string) error {
	return wrapClass(Fatal, err, component, method, action)
}

func wrapClass(class Class, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &Classified{
		Class:     class,
		Err:       Wrap(err, component, method, action),
		Component: component,
		Operation: method,
	}
}

// ClassOf returns the class of the outermost classified error in the chain, or
// Transient when none is present.
func ClassOf(err error) Class {
	var c *Classified
	if errors.As(err, &c) {
		return c.Class
	}
	return Transient
}

func IsFatal(err error) bool {
	return err != nil && ClassOf(err) == Fatal
}

func IsInvalid(err error) bool {
	return err != nil && ClassOf(err) == Invalid
}

func IsTransient(err error) bool {
	return err != nil && ClassOf(err) == Transient
}
