package main

// seedIDs is a sample of live FINN car ads used to populate a fresh database.
var seedIDs = []string{
	"390304879", "384606036", "391245810", "377147039", "384453428",
	"385740332", "391230921", "390348470", "390363743", "390444818",
	"384757762", "384766182", "390868793", "391258630", "390416509",
	"390938047", "390174675", "390254773", "391277026", "390837255",
	"391319056", "390641528", "390072240", "391268382", "390893795",
	"391056026", "391201861", "390300784", "377969800", "391198432",
}
