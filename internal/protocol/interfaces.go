package protocol

// Interface descriptors for everything the relay forwards. Versions
// are the highest revision the relay understands; the registry clamps
// them to what the host advertises.

var (
	Display = &Interface{
		Name:    "wl_display",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "sync", Signature: "n", Types: []string{"wl_callback"}},
			{Name: "get_registry", Signature: "n", Types: []string{"wl_registry"}},
		},
		Events: []MessageDesc{
			{Name: "error", Signature: "ous", Types: []string{""}},
			{Name: "delete_id", Signature: "u"},
		},
	}

	Registry = &Interface{
		Name:    "wl_registry",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "bind", Signature: "un", Types: []string{""}},
		},
		Events: []MessageDesc{
			{Name: "global", Signature: "usu"},
			{Name: "global_remove", Signature: "u"},
		},
	}

	Callback = &Interface{
		Name:    "wl_callback",
		Version: 1,
		Events: []MessageDesc{
			{Name: "done", Signature: "u"},
		},
	}

	Compositor = &Interface{
		Name:    "wl_compositor",
		Version: 4,
		Requests: []MessageDesc{
			{Name: "create_surface", Signature: "n", Types: []string{"wl_surface"}},
			{Name: "create_region", Signature: "n", Types: []string{"wl_region"}},
		},
	}

	Region = &Interface{
		Name:    "wl_region",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "add", Signature: "iiii"},
			{Name: "subtract", Signature: "iiii"},
		},
	}

	Surface = &Interface{
		Name:    "wl_surface",
		Version: 5,
		Requests: []MessageDesc{
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "attach", Signature: "?oii", Types: []string{"wl_buffer"}},
			{Name: "damage", Signature: "iiii"},
			{Name: "frame", Signature: "n", Types: []string{"wl_callback"}},
			{Name: "set_opaque_region", Signature: "?o", Types: []string{"wl_region"}},
			{Name: "set_input_region", Signature: "?o", Types: []string{"wl_region"}},
			{Name: "commit", Signature: ""},
			{Name: "set_buffer_transform", Signature: "i", Since: 2},
			{Name: "set_buffer_scale", Signature: "i", Since: 3},
			{Name: "damage_buffer", Signature: "iiii", Since: 4},
			{Name: "offset", Signature: "ii", Since: 5},
		},
		Events: []MessageDesc{
			{Name: "enter", Signature: "o", Types: []string{"wl_output"}},
			{Name: "leave", Signature: "o", Types: []string{"wl_output"}},
		},
	}

	Shm = &Interface{
		Name:    "wl_shm",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "create_pool", Signature: "nhi", Types: []string{"wl_shm_pool"}},
		},
		Events: []MessageDesc{
			{Name: "format", Signature: "u"},
		},
	}

	ShmPool = &Interface{
		Name:    "wl_shm_pool",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "create_buffer", Signature: "niiiiu", Types: []string{"wl_buffer"}},
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "resize", Signature: "i"},
		},
	}

	Buffer = &Interface{
		Name:    "wl_buffer",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "destroy", Signature: "", Destructor: true},
		},
		Events: []MessageDesc{
			{Name: "release", Signature: ""},
		},
	}

	DataDeviceManager = &Interface{
		Name:    "wl_data_device_manager",
		Version: 3,
		Requests: []MessageDesc{
			{Name: "create_data_source", Signature: "n", Types: []string{"wl_data_source"}},
			{Name: "get_data_device", Signature: "no", Types: []string{"wl_data_device", "wl_seat"}},
		},
	}

	DataSource = &Interface{
		Name:    "wl_data_source",
		Version: 3,
		Requests: []MessageDesc{
			{Name: "offer", Signature: "s"},
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "set_actions", Signature: "u", Since: 3},
		},
		Events: []MessageDesc{
			{Name: "target", Signature: "?s"},
			{Name: "send", Signature: "sh"},
			{Name: "cancelled", Signature: ""},
			{Name: "dnd_drop_performed", Signature: "", Since: 3},
			{Name: "dnd_finished", Signature: "", Since: 3},
			{Name: "action", Signature: "u", Since: 3},
		},
	}

	DataDevice = &Interface{
		Name:    "wl_data_device",
		Version: 3,
		Requests: []MessageDesc{
			{Name: "start_drag", Signature: "?oo?ou", Types: []string{"wl_data_source", "wl_surface", "wl_surface"}},
			{Name: "set_selection", Signature: "?ou", Types: []string{"wl_data_source"}},
			{Name: "release", Signature: "", Destructor: true, Since: 2},
		},
		Events: []MessageDesc{
			{Name: "data_offer", Signature: "n", Types: []string{"wl_data_offer"}},
			{Name: "enter", Signature: "uoff?o", Types: []string{"wl_surface", "wl_data_offer"}},
			{Name: "leave", Signature: ""},
			{Name: "motion", Signature: "uff"},
			{Name: "drop", Signature: ""},
			{Name: "selection", Signature: "?o", Types: []string{"wl_data_offer"}},
		},
	}

	DataOffer = &Interface{
		Name:    "wl_data_offer",
		Version: 3,
		Requests: []MessageDesc{
			{Name: "accept", Signature: "u?s"},
			{Name: "receive", Signature: "sh"},
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "finish", Signature: "", Since: 3},
			{Name: "set_actions", Signature: "uu", Since: 3},
		},
		Events: []MessageDesc{
			{Name: "offer", Signature: "s"},
			{Name: "source_actions", Signature: "u", Since: 3},
			{Name: "action", Signature: "u", Since: 3},
		},
	}

	Seat = &Interface{
		Name:    "wl_seat",
		Version: 5,
		Requests: []MessageDesc{
			{Name: "get_pointer", Signature: "n", Types: []string{"wl_pointer"}},
			{Name: "get_keyboard", Signature: "n", Types: []string{"wl_keyboard"}},
			{Name: "get_touch", Signature: "n", Types: []string{"wl_touch"}},
			{Name: "release", Signature: "", Destructor: true, Since: 5},
		},
		Events: []MessageDesc{
			{Name: "capabilities", Signature: "u"},
			{Name: "name", Signature: "s", Since: 2},
		},
	}

	Pointer = &Interface{
		Name:    "wl_pointer",
		Version: 5,
		Requests: []MessageDesc{
			{Name: "set_cursor", Signature: "u?oii", Types: []string{"wl_surface"}},
			{Name: "release", Signature: "", Destructor: true, Since: 3},
		},
		Events: []MessageDesc{
			{Name: "enter", Signature: "uoff", Types: []string{"wl_surface"}},
			{Name: "leave", Signature: "uo", Types: []string{"wl_surface"}},
			{Name: "motion", Signature: "uff"},
			{Name: "button", Signature: "uuuu"},
			{Name: "axis", Signature: "uuf"},
			{Name: "frame", Signature: "", Since: 5},
			{Name: "axis_source", Signature: "u", Since: 5},
			{Name: "axis_stop", Signature: "uu", Since: 5},
			{Name: "axis_discrete", Signature: "ui", Since: 5},
		},
	}

	Keyboard = &Interface{
		Name:    "wl_keyboard",
		Version: 5,
		Requests: []MessageDesc{
			{Name: "release", Signature: "", Destructor: true, Since: 3},
		},
		Events: []MessageDesc{
			{Name: "keymap", Signature: "uhu"},
			{Name: "enter", Signature: "uoa", Types: []string{"wl_surface"}},
			{Name: "leave", Signature: "uo", Types: []string{"wl_surface"}},
			{Name: "key", Signature: "uuuu"},
			{Name: "modifiers", Signature: "uuuuu"},
			{Name: "repeat_info", Signature: "ii", Since: 4},
		},
	}

	Touch = &Interface{
		Name:    "wl_touch",
		Version: 5,
		Requests: []MessageDesc{
			{Name: "release", Signature: "", Destructor: true, Since: 3},
		},
		Events: []MessageDesc{
			{Name: "down", Signature: "uuoiff", Types: []string{"wl_surface"}},
			{Name: "up", Signature: "uui"},
			{Name: "motion", Signature: "uiff"},
			{Name: "frame", Signature: ""},
			{Name: "cancel", Signature: ""},
		},
	}

	Output = &Interface{
		Name:    "wl_output",
		Version: 4,
		Requests: []MessageDesc{
			{Name: "release", Signature: "", Destructor: true, Since: 3},
		},
		Events: []MessageDesc{
			{Name: "geometry", Signature: "iiiiissi"},
			{Name: "mode", Signature: "uiii"},
			{Name: "done", Signature: "", Since: 2},
			{Name: "scale", Signature: "i", Since: 2},
			{Name: "name", Signature: "s", Since: 4},
			{Name: "description", Signature: "s", Since: 4},
		},
	}

	XdgOutputManager = &Interface{
		Name:    "zxdg_output_manager_v1",
		Version: 3,
		Requests: []MessageDesc{
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "get_xdg_output", Signature: "no", Types: []string{"zxdg_output_v1", "wl_output"}},
		},
	}

	XdgOutput = &Interface{
		Name:    "zxdg_output_v1",
		Version: 3,
		Requests: []MessageDesc{
			{Name: "destroy", Signature: "", Destructor: true},
		},
		Events: []MessageDesc{
			{Name: "logical_position", Signature: "ii"},
			{Name: "logical_size", Signature: "ii"},
			{Name: "done", Signature: ""},
			{Name: "name", Signature: "s", Since: 2},
			{Name: "description", Signature: "s", Since: 2},
		},
	}

	PrimarySelectionDeviceManager = &Interface{
		Name:    "zwp_primary_selection_device_manager_v1",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "create_source", Signature: "n", Types: []string{"zwp_primary_selection_source_v1"}},
			{Name: "get_device", Signature: "no", Types: []string{"zwp_primary_selection_device_v1", "wl_seat"}},
			{Name: "destroy", Signature: "", Destructor: true},
		},
	}

	PrimarySelectionDevice = &Interface{
		Name:    "zwp_primary_selection_device_v1",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "set_selection", Signature: "?ou", Types: []string{"zwp_primary_selection_source_v1"}},
			{Name: "destroy", Signature: "", Destructor: true},
		},
		Events: []MessageDesc{
			{Name: "data_offer", Signature: "n", Types: []string{"zwp_primary_selection_offer_v1"}},
			{Name: "selection", Signature: "?o", Types: []string{"zwp_primary_selection_offer_v1"}},
		},
	}

	PrimarySelectionSource = &Interface{
		Name:    "zwp_primary_selection_source_v1",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "offer", Signature: "s"},
			{Name: "destroy", Signature: "", Destructor: true},
		},
		Events: []MessageDesc{
			{Name: "send", Signature: "sh"},
			{Name: "cancelled", Signature: ""},
		},
	}

	PrimarySelectionOffer = &Interface{
		Name:    "zwp_primary_selection_offer_v1",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "receive", Signature: "sh"},
			{Name: "destroy", Signature: "", Destructor: true},
		},
		Events: []MessageDesc{
			{Name: "offer", Signature: "s"},
		},
	}

	// The legacy GTK primary-selection protocol is wire-identical to
	// the zwp one after renaming; the registry advertises both backed
	// by the same host global.
	GtkPrimarySelectionDeviceManager = &Interface{
		Name:    "gtk_primary_selection_device_manager",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "create_source", Signature: "n", Types: []string{"gtk_primary_selection_source"}},
			{Name: "get_device", Signature: "no", Types: []string{"gtk_primary_selection_device", "wl_seat"}},
			{Name: "destroy", Signature: "", Destructor: true},
		},
	}

	GtkPrimarySelectionDevice = &Interface{
		Name:    "gtk_primary_selection_device",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "set_selection", Signature: "?ou", Types: []string{"gtk_primary_selection_source"}},
			{Name: "destroy", Signature: "", Destructor: true},
		},
		Events: []MessageDesc{
			{Name: "data_offer", Signature: "n", Types: []string{"gtk_primary_selection_offer"}},
			{Name: "selection", Signature: "?o", Types: []string{"gtk_primary_selection_offer"}},
		},
	}

	GtkPrimarySelectionSource = &Interface{
		Name:    "gtk_primary_selection_source",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "offer", Signature: "s"},
			{Name: "destroy", Signature: "", Destructor: true},
		},
		Events: []MessageDesc{
			{Name: "send", Signature: "sh"},
			{Name: "cancelled", Signature: ""},
		},
	}

	GtkPrimarySelectionOffer = &Interface{
		Name:    "gtk_primary_selection_offer",
		Version: 1,
		Requests: []MessageDesc{
			{Name: "receive", Signature: "sh"},
			{Name: "destroy", Signature: "", Destructor: true},
		},
		Events: []MessageDesc{
			{Name: "offer", Signature: "s"},
		},
	}

	XdgWmBase = &Interface{
		Name:    "xdg_wm_base",
		Version: 2,
		Requests: []MessageDesc{
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "create_positioner", Signature: "n", Types: []string{"xdg_positioner"}},
			{Name: "get_xdg_surface", Signature: "no", Types: []string{"xdg_surface", "wl_surface"}},
			{Name: "pong", Signature: "u"},
		},
		Events: []MessageDesc{
			{Name: "ping", Signature: "u"},
		},
	}

	XdgPositioner = &Interface{
		Name:    "xdg_positioner",
		Version: 2,
		Requests: []MessageDesc{
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "set_size", Signature: "ii"},
			{Name: "set_anchor_rect", Signature: "iiii"},
			{Name: "set_anchor", Signature: "u"},
			{Name: "set_gravity", Signature: "u"},
			{Name: "set_constraint_adjustment", Signature: "u"},
			{Name: "set_offset", Signature: "ii"},
		},
	}

	XdgSurface = &Interface{
		Name:    "xdg_surface",
		Version: 2,
		Requests: []MessageDesc{
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "get_toplevel", Signature: "n", Types: []string{"xdg_toplevel"}},
			{Name: "get_popup", Signature: "n?oo", Types: []string{"xdg_popup", "xdg_surface", "xdg_positioner"}},
			{Name: "set_window_geometry", Signature: "iiii"},
			{Name: "ack_configure", Signature: "u"},
		},
		Events: []MessageDesc{
			{Name: "configure", Signature: "u"},
		},
	}

	XdgToplevel = &Interface{
		Name:    "xdg_toplevel",
		Version: 2,
		Requests: []MessageDesc{
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "set_parent", Signature: "?o", Types: []string{"xdg_toplevel"}},
			{Name: "set_title", Signature: "s"},
			{Name: "set_app_id", Signature: "s"},
			{Name: "show_window_menu", Signature: "ouii", Types: []string{"wl_seat"}},
			{Name: "move", Signature: "ou", Types: []string{"wl_seat"}},
			{Name: "resize", Signature: "ouu", Types: []string{"wl_seat"}},
			{Name: "set_max_size", Signature: "ii"},
			{Name: "set_min_size", Signature: "ii"},
			{Name: "set_maximized", Signature: ""},
			{Name: "unset_maximized", Signature: ""},
			{Name: "set_fullscreen", Signature: "?o", Types: []string{"wl_output"}},
			{Name: "unset_fullscreen", Signature: ""},
			{Name: "set_minimized", Signature: ""},
		},
		Events: []MessageDesc{
			{Name: "configure", Signature: "iia"},
			{Name: "close", Signature: ""},
		},
	}

	XdgPopup = &Interface{
		Name:    "xdg_popup",
		Version: 2,
		Requests: []MessageDesc{
			{Name: "destroy", Signature: "", Destructor: true},
			{Name: "grab", Signature: "ou", Types: []string{"wl_seat"}},
		},
		Events: []MessageDesc{
			{Name: "configure", Signature: "iiii"},
			{Name: "popup_done", Signature: ""},
		},
	}
)

var registry = map[string]*Interface{}

func register(ifaces ...*Interface) {
	for _, i := range ifaces {
		registry[i.Name] = i
	}
}

func init() {
	register(
		Display, Registry, Callback, Compositor, Region, Surface,
		Shm, ShmPool, Buffer,
		DataDeviceManager, DataSource, DataDevice, DataOffer,
		Seat, Pointer, Keyboard, Touch,
		Output, XdgOutputManager, XdgOutput,
		PrimarySelectionDeviceManager, PrimarySelectionDevice,
		PrimarySelectionSource, PrimarySelectionOffer,
		GtkPrimarySelectionDeviceManager, GtkPrimarySelectionDevice,
		GtkPrimarySelectionSource, GtkPrimarySelectionOffer,
		XdgWmBase, XdgPositioner, XdgSurface, XdgToplevel, XdgPopup,
	)
}

// Lookup resolves an interface by protocol name.
func Lookup(name string) (*Interface, bool) {
	i, ok := registry[name]
	return i, ok
}
