package templates

// NoResultsText is shown when the results view has nothing to display.
const NoResultsText = "No diagnosis results found"
