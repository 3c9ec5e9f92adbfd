package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ca "github.com/Araneidae/epics-ca"
	"github.com/Araneidae/epics-ca/dbr"
)

const timeLayout = "2006-01-02 15:04:05.000000"

// readOne reads name in the shape selected by opts and formats it as one
// output line.
func readOne(ctx context.Context, c *ca.Client, name string, opts options) (string, error) {
	switch {
	case opts.timestamps:
		return readTimed(ctx, c, name, opts.array)
	case opts.ctrl:
		return readCtrl(ctx, c, name, opts.array)
	case opts.array:
		vs, err := ca.GetVector[string](ctx, c, name)
		if err != nil {
			return "", err
		}
		return join(name, formatArray(vs)), nil
	}

	v, err := ca.Get[string](ctx, c, name)
	if err != nil {
		return "", err
	}
	return join(name, v), nil
}

func readTimed(ctx context.Context, c *ca.Client, name string, array bool) (string, error) {
	var (
		value string
		ss    dbr.StatusSeverity
		stamp string
	)
	if array {
		r, err := ca.GetTimedVector[string](ctx, c, name)
		if err != nil {
			return "", err
		}
		value, ss, stamp = formatArray(r.Value), r.StatusSeverity, r.Timestamp.Local().Format(timeLayout)
	} else {
		r, err := ca.GetTimed[string](ctx, c, name)
		if err != nil {
			return "", err
		}
		value, ss, stamp = r.Value, r.StatusSeverity, r.Timestamp.Local().Format(timeLayout)
	}
	return join(name, stamp, value, formatAlarm(ss)), nil
}

// readCtrl picks the control record from the native type: strings carry no
// metadata, enums carry labels and everything else is read as DOUBLE.
func readCtrl(ctx context.Context, c *ca.Client, name string, array bool) (string, error) {
	native, err := ca.GetUnion(ctx, c, name)
	if err != nil {
		return "", err
	}

	switch native.Type {
	case dbr.String:
		if array {
			vs, err := ca.GetVector[string](ctx, c, name)
			if err != nil {
				return "", err
			}
			return join(name, formatArray(vs)), nil
		}
		return join(name, native.String()), nil

	case dbr.Enum:
		if array {
			r, err := ca.GetCtrlVector[dbr.EnumValue](ctx, c, name)
			if err != nil {
				return "", err
			}
			labels := make([]string, len(r.Value))
			for i, e := range r.Value {
				labels[i] = enumLabel(e, r.Ctrl.EnumStrings)
			}
			return join(name, formatArray(labels), formatAlarm(r.StatusSeverity)), nil
		}
		r, err := ca.GetCtrl[dbr.EnumValue](ctx, c, name)
		if err != nil {
			return "", err
		}
		states := fmt.Sprintf("(%d of %d)", r.Value, len(r.Ctrl.EnumStrings))
		return join(name, enumLabel(r.Value, r.Ctrl.EnumStrings), states, formatAlarm(r.StatusSeverity)), nil
	}

	if array {
		r, err := ca.GetCtrlVector[float64](ctx, c, name)
		if err != nil {
			return "", err
		}
		vs := make([]string, len(r.Value))
		for i, v := range r.Value {
			vs[i] = formatFloat(v, r.Ctrl.Precision)
		}
		return join(name, formatArray(vs), r.Ctrl.Units, formatAlarm(r.StatusSeverity)), nil
	}
	r, err := ca.GetCtrl[float64](ctx, c, name)
	if err != nil {
		return "", err
	}
	return join(name, formatFloat(r.Value, r.Ctrl.Precision), r.Ctrl.Units, formatAlarm(r.StatusSeverity)), nil
}

// join joins the non-empty fields with single spaces.
func join(fields ...string) string {
	out := fields[:0:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

func formatArray(vs []string) string {
	return join(append([]string{strconv.Itoa(len(vs))}, vs...)...)
}

// formatAlarm is empty when there is no alarm.
func formatAlarm(ss dbr.StatusSeverity) string {
	if ss.Severity == dbr.NoAlarm {
		return ""
	}
	return ss.Status.String() + " " + ss.Severity.String()
}

func formatFloat(v float64, precision int16) string {
	if precision <= 0 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', int(precision), 64)
}

func enumLabel(e dbr.EnumValue, labels []string) string {
	if int(e) < len(labels) {
		return labels[e]
	}
	return strconv.Itoa(int(e))
}

func formatError(name string, err error) string {
	var readErr *ca.ReadError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s *** not connected or no response", name)
	case errors.Is(err, ca.ErrDisconnected):
		return fmt.Sprintf("%s *** disconnected", name)
	case errors.As(err, &readErr):
		return fmt.Sprintf("%s *** read failed: %s", name, readErr.Status)
	}
	return fmt.Sprintf("%s *** %v", name, err)
}
