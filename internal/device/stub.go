//go:build !midi_native

package device

func openIn(string) (In, error) { return nil, ErrNoDriver }

func openOut(string) (Out, error) { return nil, ErrNoDriver }

func listPorts() (Ports, error) { return Ports{}, ErrNoDriver }

func closeDriver() {}
