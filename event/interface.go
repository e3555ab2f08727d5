////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package event

import "gitlab.com/tidechat/client/stoppable"

// Callback defines the callback functions for client event reports.
type Callback func(priority int, category, evtType, details string)

// Manager reporting api (used internally by the polling components to surface
// user-visible errors and notices).
type Manager interface {
	Report(priority int, category, evtType, details string)
	RegisterEventCallback(name string, myFunc Callback) error
	UnregisterEventCallback(name string)
	EventService() (stoppable.Stoppable, error)
}
