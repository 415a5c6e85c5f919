package main

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/skymks/loginsolver"
)

// drivers maps the DRIVER config value to a constructor. Real protocol
// integrations register here; the build ships only the scripted demo.
var drivers = map[string]func(logger *logrus.Logger) loginsolver.Driver{
	"demo": func(logger *logrus.Logger) loginsolver.Driver {
		return &demoDriver{logger: logger}
	},
}

func driverFor(name string, logger *logrus.Logger) (loginsolver.Driver, bool) {
	ctor, ok := drivers[name]
	if !ok {
		return nil, false
	}
	return ctor(logger), true
}

// demoDriver stands in for a real login-protocol driver so the daemon can be
// exercised end to end without upstream credentials. It accepts any
// credential except "deny", challenges every attempt with a slider captcha
// and treats any non-empty ticket as solved.
type demoDriver struct {
	logger *logrus.Logger
}

func (d *demoDriver) Login(ctx context.Context, req loginsolver.LoginRequest, solver loginsolver.Solver) (*loginsolver.LoginOutcome, error) {
	if strings.EqualFold(req.Credential, "deny") {
		return nil, errors.New("credential rejected")
	}

	ticket, err := solver.SolveSliderCaptcha(ctx, req.Principal, "https://captcha.example/slider/"+req.Principal)
	if err != nil {
		return nil, err
	}
	if ticket == "" {
		return nil, errors.New("empty captcha ticket")
	}

	d.logger.WithFields(logrus.Fields{
		"principal": req.Principal,
		"ticket":    ticket,
	}).Debug("demo login solved")

	return &loginsolver.LoginOutcome{Device: "demo-device-" + req.Principal}, nil
}
