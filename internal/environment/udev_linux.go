//go:build linux

package environment

import "github.com/jochenvg/go-udev"

// OutputDevices enumerates the sound subsystem via udev, best-effort. It
// supplements DecoderCaps with the set of physical output devices available
// on this host, generalizing the teacher's single "open this specific
// device" call into "list what's available."
func OutputDevices() []string {
	u := udev.Udev{}
	enumerate := u.NewEnumerate()
	if err := enumerate.AddMatchSubsystem("sound"); err != nil {
		return nil
	}

	devices, err := enumerate.Devices()
	if err != nil {
		return nil
	}

	var names []string
	for _, d := range devices {
		if name := d.PropertyValue("ID_MODEL"); name != "" {
			names = append(names, name)
		}
	}
	return names
}
