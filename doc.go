// Package gatt implements the core of a Bluetooth Low Energy host
// stack: an HCI command/event engine, ACL fragmentation and
// reassembly, and an ATT/GATT server hosting an attribute database.
//
// STATUS
//
// Peripheral support is complete: build an attribute database with
// ServiceBuilder and CharacteristicBuilder, bring a controller up with
// a Stack, and advertise. Central support is limited to the RoleCentral
// startup sequence, which enables scanning, and to decoding advertising
// reports; connecting to and making requests of a remote GATT server
// is not implemented.
//
// SETUP
//
// This package talks to the local controller directly over HCI raw
// sockets; no BlueZ userspace daemon needs to be running, but the
// target HCI device does need to be brought up first:
//
//     sudo hciconfig hci0 up
//
// Opening a raw HCI socket requires CAP_NET_RAW or root.
//
// USAGE
//
// A server is built by declaring its services and characteristics,
// wrapping them in a Stack bound to a transport, and starting it:
//
//     svc := gatt.NewService(gatt.UUID16(0x180F)) // Battery Service
//     svc.AddCharacteristic(
//         gatt.NewCharacteristic(gatt.UUID16(0x2A19)). // Battery Level
//             Readable([]byte{100}).
//             Notifiable(),
//     )
//
//     ad := gatt.NewAdvertisingData()
//     ad.AddFlags(gatt.FlagLEGeneralDiscoverable | gatt.FlagLEOnly)
//     ad.AddLocalName("gopher")
//
//     cfg := gatt.NewConfig(
//         gatt.WithLocalName("gopher"),
//         gatt.WithAdvertisingData(ad),
//     )
//
//     var stack *gatt.Stack
//     sock, err := linux.Open(cfg.DeviceID, func(p gatt.HCIPacket) { stack.HandlePacket(p) })
//     if err != nil {
//         log.Fatal(err)
//     }
//     stack, err = gatt.NewStack(cfg, sock, []*gatt.ServiceBuilder{svc})
//     if err != nil {
//         log.Fatal(err)
//     }
//     stack.OnReady = func() { log.Println("advertising") }
//     log.Fatal(stack.Start())
//
// HandleRequest, HandlePacket, the command engine, and ACL reassembly
// all run synchronously inside Stack.Start's call into the transport's
// Run loop; no goroutines are spawned by the core (§5).
//
// Well-known service, characteristic, and descriptor UUIDs resolve to
// their SIG-assigned names through AssignedName; the package's own log
// lines do not call it.
package gatt
